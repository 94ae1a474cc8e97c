package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stock-charter/src/interfaces"
	"stock-charter/src/logger"
	"stock-charter/src/models"
	"stock-charter/src/providers"
	"stock-charter/src/quota"
	"stock-charter/src/storage"
	"stock-charter/src/tracking"
	"stock-charter/src/utils"

	"github.com/robfig/cron/v3"
)

// interactivePriority is the tier given to symbols registered through the
// API without an explicit priority.
const interactivePriority = 2

// -----------------------------------------------------------------------------
// Scheduler drains the update queue on a fixed tick, one item per tick.
// A single goroutine owns the tick loop and interactive updates share one
// mutex with it, which keeps quota check-then-record free of races without
// finer locking.
// -----------------------------------------------------------------------------

type Scheduler struct {
	Config   *models.MConfig
	Store    interfaces.IStockStore
	Quota    *quota.Tracker
	Tracker  *tracking.Tracker
	Fetch    *providers.Fallback
	Queue    *UpdateQueue
	Notifier interfaces.IUpdateNotifier
	Markets  *utils.Markets
	Logger   *logger.Logger

	cron  *cron.Cron
	runMu sync.Mutex

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// -----------------------------------------------------------------------------

func NewScheduler(
	cfg *models.MConfig,
	store interfaces.IStockStore,
	quotaTracker *quota.Tracker,
	tracker *tracking.Tracker,
	fetch *providers.Fallback,
	notifier interfaces.IUpdateNotifier,
	markets *utils.Markets,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		Config:   cfg,
		Store:    store,
		Quota:    quotaTracker,
		Tracker:  tracker,
		Fetch:    fetch,
		Queue:    NewUpdateQueue(),
		Notifier: notifier,
		Markets:  markets,
		Logger:   log,
	}
}

// -----------------------------------------------------------------------------

// Start launches the tick loop and the cron jobs. Returns an error if the
// scheduler is already running.
func (s *Scheduler) Start(parentCtx context.Context, wg *sync.WaitGroup) error {
	if s.ctx != nil {
		return fmt.Errorf("scheduler is already running")
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.ctx = ctx
	s.cancelFunc = cancel

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.Config.Scheduler.ScanCron, s.ScanStale); err != nil {
		cancel()
		return fmt.Errorf("bad scan_cron %q: %w", s.Config.Scheduler.ScanCron, err)
	}
	if _, err := s.cron.AddFunc(s.Config.Scheduler.SweepCron, s.SweepFundamentals); err != nil {
		cancel()
		return fmt.Errorf("bad sweep_cron %q: %w", s.Config.Scheduler.SweepCron, err)
	}
	s.cron.Start()

	wg.Add(1)
	go s.loop(ctx, wg)

	s.Logger.Info("Scheduler started (tick every %ds)", s.Config.Scheduler.TickSeconds)
	return nil
}

// -----------------------------------------------------------------------------

func (s *Scheduler) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	if s.cron != nil {
		s.cron.Stop()
	}
}

// -----------------------------------------------------------------------------

func (s *Scheduler) loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(time.Duration(s.Config.Scheduler.TickSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// -----------------------------------------------------------------------------

// Tick processes at most one queued item. When no provider has quota
// headroom the whole tick is skipped; partial attempts would spend the
// remaining slots on work that cannot finish.
func (s *Scheduler) Tick() {
	if s.Queue.Len() == 0 {
		return
	}

	if !s.Quota.AnyHeadroom() {
		s.Logger.Debug("Tick skipped: no quota headroom on any provider")
		return
	}

	item := s.Queue.Pop()
	if item == nil {
		return
	}

	item.State = StateInFlight
	err := s.runUpdate(item.Symbol, item.UpdateType)
	s.Resolve(item, err)
}

// -----------------------------------------------------------------------------

// Resolve routes an attempt outcome through the item state machine and
// re-enqueues retryable failures with decayed priority.
func (s *Scheduler) Resolve(item *QueueItem, err error) {
	if err == nil {
		item.State = StateSucceeded
		return
	}

	item.Retries++
	if item.Retries >= s.maxRetries() {
		item.State = StateFailedTerminal
		s.Logger.Warning("Dropping %s %s update after %d attempts: %v",
			item.Symbol, item.UpdateType, item.Retries, err)
		return
	}

	item.State = StateFailedRetryable
	item.Priority = models.ClampPriority(item.Priority + 1)
	s.Queue.Requeue(item)
	s.Logger.Info("Requeued %s %s update (attempt %d, priority %d): %v",
		item.Symbol, item.UpdateType, item.Retries, item.Priority, err)
}

func (s *Scheduler) maxRetries() int {
	if s.Config.Scheduler.MaxRetries > 0 {
		return s.Config.Scheduler.MaxRetries
	}
	return 3
}

// -----------------------------------------------------------------------------

// runUpdate performs one refresh end to end: provider fan-out, store
// write, tracker stamp, listener notification. The store and the tracker
// move together; a failed write is stamped as a failure, never a success.
func (s *Scheduler) runUpdate(symbol, updateType string) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	var (
		provider string
		bars     int
		err      error
	)

	switch updateType {
	case models.UpdateTypePrice:
		var fetched []models.MPriceBar
		fetched, provider, err = s.Fetch.FetchDailyBars(symbol)
		if err == nil {
			bars = len(fetched)
			if werr := s.Store.UpsertPriceBars(symbol, fetched); werr != nil {
				err = &storage.WriteError{Op: "price bars", Err: werr}
			}
		}

	case models.UpdateTypeOverview:
		var snapshot *models.MFundamentals
		snapshot, provider, err = s.Fetch.FetchFundamentals(symbol)
		if err == nil {
			snapshot.UpdatedAt = time.Now().Unix()
			if werr := s.Store.UpsertFundamentals(*snapshot); werr != nil {
				err = &storage.WriteError{Op: "fundamentals", Err: werr}
			}
		}

	case models.UpdateTypeFinancials:
		var periods []models.MIncomeStatement
		periods, provider, err = s.Fetch.FetchIncomeStatements(symbol)
		if err == nil {
			if werr := s.Store.UpsertIncomeStatements(symbol, periods); werr != nil {
				err = &storage.WriteError{Op: "income statements", Err: werr}
			}
		}

	default:
		return fmt.Errorf("unknown update type %q", updateType)
	}

	if err != nil {
		if serr := s.Tracker.StampFailure(symbol, err); serr != nil {
			s.Logger.Error("Failed to stamp failure for %s: %v", symbol, serr)
		}
		return err
	}

	if serr := s.Tracker.StampSuccess(symbol, updateType); serr != nil {
		s.Logger.Error("Failed to stamp success for %s: %v", symbol, serr)
	}

	if s.Notifier != nil {
		s.Notifier.NotifyUpdated(models.MUpdateEvent{
			Type:       "STOCK_UPDATED",
			Symbol:     symbol,
			UpdateType: updateType,
			Provider:   provider,
			Bars:       bars,
			Timestamp:  time.Now().Unix(),
		})
	}

	return nil
}

// -----------------------------------------------------------------------------

// UpdateNow serves interactive callers: the refresh runs immediately
// instead of being enqueued, preempting background ordering while still
// sharing the same quota gate and stamp path.
func (s *Scheduler) UpdateNow(symbol, updateType string) error {
	if !models.IsUpdateType(updateType) {
		return fmt.Errorf("unknown update type %q", updateType)
	}

	rec, err := s.Tracker.Status(symbol)
	if err != nil {
		return err
	}
	if rec == nil {
		if err := s.Tracker.RegisterSymbol(symbol, interactivePriority); err != nil {
			return err
		}
		if s.Markets != nil {
			s.Markets.TrackSymbol(symbol)
		}
	}

	return s.runUpdate(symbol, updateType)
}

// -----------------------------------------------------------------------------

// Enqueue schedules a background refresh.
func (s *Scheduler) Enqueue(symbol, updateType string, priority int) {
	if !models.IsUpdateType(updateType) {
		s.Logger.Warning("Ignoring enqueue with unknown update type %q", updateType)
		return
	}
	s.Queue.Push(symbol, updateType, priority)
}

// -----------------------------------------------------------------------------

// ScanStale feeds the queue with symbols whose cached prices aged out.
// While every tracked market is closed the allowed age widens, so closed
// weekends do not drain the daily quota on unchanged candles.
func (s *Scheduler) ScanStale() {
	maxAge := time.Duration(s.Config.Scheduler.PriceMaxAgeHours) * time.Hour
	if s.Markets != nil && !s.Markets.AnyOpen() {
		if closed := s.Config.Scheduler.ClosedMaxAgeHours; closed > s.Config.Scheduler.PriceMaxAgeHours {
			maxAge = time.Duration(closed) * time.Hour
		}
	}

	records, err := s.Tracker.FindSymbolsNeedingUpdate(models.UpdateTypePrice, maxAge, s.batchLimit())
	if err != nil {
		s.Logger.Error("Stale scan failed: %v", err)
		return
	}

	for _, r := range records {
		s.Queue.Push(r.Symbol, models.UpdateTypePrice, r.Priority)
	}
	if len(records) > 0 {
		s.Logger.Info("Stale scan queued %d price updates (queue length %d)", len(records), s.Queue.Len())
	}
}

// -----------------------------------------------------------------------------

// SweepFundamentals enqueues overview and financials refreshes on their
// slower cadence.
func (s *Scheduler) SweepFundamentals() {
	type sweep struct {
		updateType string
		maxAge     time.Duration
	}
	sweeps := []sweep{
		{models.UpdateTypeOverview, time.Duration(s.Config.Scheduler.OverviewMaxAgeHours) * time.Hour},
		{models.UpdateTypeFinancials, time.Duration(s.Config.Scheduler.FinancialsMaxAgeHours) * time.Hour},
	}

	for _, sw := range sweeps {
		records, err := s.Tracker.FindSymbolsNeedingUpdate(sw.updateType, sw.maxAge, s.batchLimit())
		if err != nil {
			s.Logger.Error("Fundamentals sweep (%s) failed: %v", sw.updateType, err)
			continue
		}
		for _, r := range records {
			s.Queue.Push(r.Symbol, sw.updateType, r.Priority)
		}
	}
}

func (s *Scheduler) batchLimit() int {
	if s.Config.Scheduler.BatchLimit > 0 {
		return s.Config.Scheduler.BatchLimit
	}
	return 25
}

package tracking

import (
	"fmt"
	"time"

	"stock-charter/src/interfaces"
	"stock-charter/src/logger"
	"stock-charter/src/models"
)

// MaxConsecutiveFailures is the circuit breaker threshold: a symbol that
// fails this many times in a row is excluded from automatic scheduling
// until it is re-registered or manually retried.
const MaxConsecutiveFailures = 3

// -----------------------------------------------------------------------------
// Tracker maintains the per-symbol update bookkeeping on top of the store.
// -----------------------------------------------------------------------------

type Tracker struct {
	Store  interfaces.IStockStore
	Logger *logger.Logger
	now    func() time.Time
}

// -----------------------------------------------------------------------------

func NewTracker(store interfaces.IStockStore, log *logger.Logger) *Tracker {
	return &Tracker{
		Store:  store,
		Logger: log,
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

// RegisterSymbol upserts a tracking row at the given priority tier and
// reactivates the symbol. Registration also resets a tripped circuit
// breaker: a human asking for a symbol is the intervention.
func (t *Tracker) RegisterSymbol(symbol string, priority int) error {
	priority = models.ClampPriority(priority)
	now := t.now()

	if err := t.Store.RegisterSymbol(symbol, priority, now); err != nil {
		return fmt.Errorf("register %s: %w", symbol, err)
	}

	rec, err := t.Store.GetUpdateRecord(symbol)
	if err != nil {
		return err
	}
	if rec != nil && rec.FailureCount >= MaxConsecutiveFailures {
		if err := t.Store.ClearFailures(symbol, now); err != nil {
			return err
		}
		t.Logger.Info("Cleared failure state for re-registered symbol %s", symbol)
	}
	return nil
}

// -----------------------------------------------------------------------------

// StampSuccess records a completed refresh: per-type instant set to now,
// failure count zeroed, stored error cleared.
func (t *Tracker) StampSuccess(symbol, updateType string) error {
	return t.Store.StampSuccess(symbol, updateType, t.now())
}

// -----------------------------------------------------------------------------

// StampFailure increments the consecutive failure count and records the
// message. When the count reaches the breaker threshold the symbol drops
// out of FindSymbolsNeedingUpdate results on its own.
func (t *Tracker) StampFailure(symbol string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := t.Store.StampFailure(symbol, msg, t.now()); err != nil {
		return err
	}

	rec, err := t.Store.GetUpdateRecord(symbol)
	if err != nil {
		return err
	}
	if rec != nil && rec.FailureCount == MaxConsecutiveFailures {
		t.Logger.Warning("Circuit breaker tripped for %s after %d consecutive failures: %s",
			symbol, rec.FailureCount, msg)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Deactivate removes a symbol from background scheduling without deleting
// its history.
func (t *Tracker) Deactivate(symbol string) error {
	return t.Store.SetSymbolActive(symbol, false, t.now())
}

// -----------------------------------------------------------------------------

// Status returns the bookkeeping row for one symbol, or nil if the symbol
// was never registered.
func (t *Tracker) Status(symbol string) (*models.MUpdateRecord, error) {
	return t.Store.GetUpdateRecord(symbol)
}

// -----------------------------------------------------------------------------

// FindSymbolsNeedingUpdate selects active symbols whose per-type
// last-update is missing or older than maxAge, skipping tripped symbols,
// ordered by priority tier then staleness, capped at limit.
func (t *Tracker) FindSymbolsNeedingUpdate(updateType string, maxAge time.Duration, limit int) ([]models.MUpdateRecord, error) {
	cutoff := t.now().Add(-maxAge)
	return t.Store.FindSymbolsNeedingUpdate(updateType, cutoff, MaxConsecutiveFailures, limit)
}

package quota

import (
	"sort"
	"sync"
	"time"

	"stock-charter/src/interfaces"
	"stock-charter/src/logger"
	"stock-charter/src/models"
)

// -----------------------------------------------------------------------------
// Tracker owns the per-provider call accounting. All check-then-act paths
// hold the mutex for the full check, so a call can never be authorized
// past a window limit. Daily and minute windows roll independently.
// -----------------------------------------------------------------------------

type Tracker struct {
	states map[string]*models.MQuotaState
	store  interfaces.IStockStore // nil in tests; persistence is best-effort
	log    *logger.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// -----------------------------------------------------------------------------

// NewTracker seeds one quota state per enabled provider. Counters survive
// restarts through the store; configured limits always win over stored ones
// so limits are adjustable without touching the database.
func NewTracker(providers []models.MProviderConfig, store interfaces.IStockStore, log *logger.Logger) *Tracker {
	t := &Tracker{
		states: make(map[string]*models.MQuotaState),
		store:  store,
		log:    log,
		now:    time.Now,
	}

	for _, p := range providers {
		if !p.Enabled {
			continue
		}

		var st *models.MQuotaState
		if store != nil {
			loaded, err := store.LoadQuotaState(p.Name)
			if err != nil {
				log.Warning("Failed to load quota state for %s: %v", p.Name, err)
			} else {
				st = loaded
			}
		}

		if st == nil {
			now := t.now()
			st = &models.MQuotaState{
				Provider:      p.Name,
				DayResetAt:    now.Add(24 * time.Hour),
				MinuteResetAt: now.Add(time.Minute),
			}
		}
		st.DailyLimit = p.DailyLimit
		st.MinuteLimit = p.MinuteLimit

		t.states[p.Name] = st
		t.persist(st)
	}

	return t
}

// -----------------------------------------------------------------------------

// SetClock overrides the time source. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// -----------------------------------------------------------------------------

// CanCall reports whether one more call to the provider fits in both the
// daily and the minute window. Elapsed windows are reset lazily first.
func (t *Tracker) CanCall(provider string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[provider]
	if !ok {
		return false
	}

	t.rollWindows(st)
	return st.CallsToday < st.DailyLimit && st.CallsThisMinute < st.MinuteLimit
}

// -----------------------------------------------------------------------------

// RecordCall consumes one slot in both windows and stamps the last-call
// instant. Callers must have checked CanCall first; the slot is spent even
// if the upstream call later fails.
func (t *Tracker) RecordCall(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[provider]
	if !ok {
		return
	}

	t.rollWindows(st)
	st.CallsToday++
	st.CallsThisMinute++
	st.LastCallAt = t.now()
	t.persist(st)
}

// -----------------------------------------------------------------------------

// ResetIfWindowElapsed applies any pending lazy window resets for the
// provider without consuming a slot.
func (t *Tracker) ResetIfWindowElapsed(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.states[provider]; ok {
		t.rollWindows(st)
	}
}

// -----------------------------------------------------------------------------

// rollWindows resets each elapsed window independently: a minute rollover
// must not touch the daily counter and vice versa. Reset instants advance
// monotonically past the current instant. Caller holds the mutex.
func (t *Tracker) rollWindows(st *models.MQuotaState) {
	now := t.now()
	changed := false

	if !now.Before(st.DayResetAt) {
		st.CallsToday = 0
		for !now.Before(st.DayResetAt) {
			st.DayResetAt = st.DayResetAt.Add(24 * time.Hour)
		}
		changed = true
	}

	if !now.Before(st.MinuteResetAt) {
		st.CallsThisMinute = 0
		for !now.Before(st.MinuteResetAt) {
			st.MinuteResetAt = st.MinuteResetAt.Add(time.Minute)
		}
		changed = true
	}

	if changed {
		t.persist(st)
	}
}

// -----------------------------------------------------------------------------

// AnyHeadroom reports whether at least one provider can take a call now.
// The scheduler uses this to skip whole ticks instead of busy-waiting.
func (t *Tracker) AnyHeadroom() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, st := range t.states {
		t.rollWindows(st)
		if st.CallsToday < st.DailyLimit && st.CallsThisMinute < st.MinuteLimit {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// Status returns the API-facing quota view for every tracked provider.
func (t *Tracker) Status() []models.MQuotaStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := make([]models.MQuotaStatus, 0, len(t.states))
	for _, st := range t.states {
		t.rollWindows(st)
		out = append(out, models.MQuotaStatus{
			Provider:        st.Provider,
			CallsToday:      st.CallsToday,
			DailyLimit:      st.DailyLimit,
			DailyRemaining:  st.DailyLimit - st.CallsToday,
			CallsThisMinute: st.CallsThisMinute,
			MinuteLimit:     st.MinuteLimit,
			MinuteRemaining: st.MinuteLimit - st.CallsThisMinute,
			DayResetSeconds: int64(st.DayResetAt.Sub(now).Seconds()),
			MinResetSeconds: int64(st.MinuteResetAt.Sub(now).Seconds()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// -----------------------------------------------------------------------------

// persist writes the state through to the store. Quota accounting stays
// authoritative in memory; a failed save only costs restart accuracy.
func (t *Tracker) persist(st *models.MQuotaState) {
	if t.store == nil {
		return
	}
	if err := t.store.SaveQuotaState(*st); err != nil {
		t.log.Warning("Failed to persist quota state for %s: %v", st.Provider, err)
	}
}

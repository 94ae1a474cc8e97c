package models

import "time"

// -----------------------------------------------------------------------------
// Update types
// -----------------------------------------------------------------------------

const (
	UpdateTypePrice      = "price"
	UpdateTypeOverview   = "overview"
	UpdateTypeFinancials = "financials"
)

// UpdateTypes lists every supported update type in sweep order.
var UpdateTypes = []string{UpdateTypePrice, UpdateTypeOverview, UpdateTypeFinancials}

// IsUpdateType reports whether s names a known update type.
func IsUpdateType(s string) bool {
	for _, t := range UpdateTypes {
		if t == s {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Priority tiers
// -----------------------------------------------------------------------------

const (
	PriorityHighest = 1
	PriorityLowest  = 4
)

// ClampPriority forces p into the valid tier range 1..4.
func ClampPriority(p int) int {
	if p < PriorityHighest {
		return PriorityHighest
	}
	if p > PriorityLowest {
		return PriorityLowest
	}
	return p
}

// -----------------------------------------------------------------------------

// MUpdateRecord is the per-symbol bookkeeping row.
// Zero in a Last*Update field means "never updated".
// Symbols are deactivated, never deleted.
type MUpdateRecord struct {
	Symbol               string `json:"symbol"`
	Priority             int    `json:"priority"`
	LastPriceUpdate      int64  `json:"last_price_update"`
	LastOverviewUpdate   int64  `json:"last_overview_update"`
	LastFinancialsUpdate int64  `json:"last_financials_update"`
	FailureCount         int    `json:"failure_count"`
	LastError            string `json:"last_error"`
	Active               bool   `json:"active"`
	CreatedAt            int64  `json:"created_at"`
	UpdatedAt            int64  `json:"updated_at"`
}

// LastUpdate returns the bookkeeping instant for the given update type.
func (r *MUpdateRecord) LastUpdate(updateType string) int64 {
	switch updateType {
	case UpdateTypeOverview:
		return r.LastOverviewUpdate
	case UpdateTypeFinancials:
		return r.LastFinancialsUpdate
	default:
		return r.LastPriceUpdate
	}
}

// -----------------------------------------------------------------------------

// MQuotaState is the persisted per-provider call accounting.
type MQuotaState struct {
	Provider        string    `json:"provider"`
	CallsToday      int       `json:"calls_today"`
	CallsThisMinute int       `json:"calls_this_minute"`
	LastCallAt      time.Time `json:"last_call_at"`
	DayResetAt      time.Time `json:"day_reset_at"`
	MinuteResetAt   time.Time `json:"minute_reset_at"`
	DailyLimit      int       `json:"daily_limit"`
	MinuteLimit     int       `json:"minute_limit"`
}

// MQuotaStatus is the API-facing view of a provider's quota window.
type MQuotaStatus struct {
	Provider         string `json:"provider"`
	CallsToday       int    `json:"calls_today"`
	DailyLimit       int    `json:"daily_limit"`
	DailyRemaining   int    `json:"daily_remaining"`
	CallsThisMinute  int    `json:"calls_this_minute"`
	MinuteLimit      int    `json:"minute_limit"`
	MinuteRemaining  int    `json:"minute_remaining"`
	DayResetSeconds  int64  `json:"day_reset_seconds"`
	MinResetSeconds  int64  `json:"minute_reset_seconds"`
}

// -----------------------------------------------------------------------------

// MUpdateEvent is broadcast to websocket listeners after a successful refresh.
type MUpdateEvent struct {
	Type       string `json:"type"` // always "STOCK_UPDATED"
	Symbol     string `json:"symbol"`
	UpdateType string `json:"update_type"`
	Provider   string `json:"provider"`
	Bars       int    `json:"bars,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MWatchCommand is the message charts send over the websocket to start
// following a symbol.
type MWatchCommand struct {
	Command string `json:"command"` // "watch"
	Symbol  string `json:"symbol"`
}

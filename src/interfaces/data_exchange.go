package interfaces

import "stock-charter/src/models"

// -----------------------------------------------------------------------------
// IUpdateNotifier pushes refresh events to external listeners (the UI).
// -----------------------------------------------------------------------------

type IUpdateNotifier interface {

	// NotifyUpdated announces that a symbol's cached data changed.
	NotifyUpdated(event models.MUpdateEvent)
}

// -----------------------------------------------------------------------------
// IUpdateRunner executes updates on behalf of interactive callers.
// -----------------------------------------------------------------------------

type IUpdateRunner interface {

	// UpdateNow runs a refresh immediately, bypassing the queue's priority
	// ordering but still subject to quota gating.
	UpdateNow(symbol, updateType string) error

	// Enqueue schedules a background refresh at the given priority tier.
	Enqueue(symbol, updateType string, priority int)
}

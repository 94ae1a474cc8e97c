package utils

import (
	"sync"
	"time"

	"stock-charter/src/logger"
)

// Markets tracks which exchange calendars the watched symbols trade on.
// The scheduler uses it to relax price staleness while everything is
// closed, so quota is not spent re-fetching unchanged candles overnight.
type Markets struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarkets(symbols []string, log *logger.Logger) *Markets {
	m := &Markets{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    log,
	}
	m.TrackSymbols(symbols)
	return m
}

// -----------------------------------------------------------------------------

// TrackSymbols replaces the tracked symbol set with a new one.
func (m *Markets) TrackSymbols(symbols []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calendars = make(map[string]*TradingCalendar)
	for _, symbol := range symbols {
		if cal := GetCalendar(symbol); cal != nil {
			m.Calendars[symbol] = cal
		}
	}

	m.Logger.Info("Markets: tracking calendars for %d symbols", len(m.Calendars))
}

// -----------------------------------------------------------------------------

// TrackSymbol adds one symbol's calendar if it is not tracked yet.
func (m *Markets) TrackSymbol(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Calendars[symbol]; ok {
		return
	}
	if cal := GetCalendar(symbol); cal != nil {
		m.Calendars[symbol] = cal
	}
}

// -----------------------------------------------------------------------------

// AnyOpen reports whether any tracked market is currently open.
func (m *Markets) AnyOpen() bool {
	now := time.Now().UTC()

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cal := range m.Calendars {
		if cal.IsOpenAt(now) {
			return true
		}
	}
	return false
}

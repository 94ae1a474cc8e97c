package utils

import (
	"testing"
	"time"

	"stock-charter/src/logger"

	"github.com/stretchr/testify/assert"
)

func TestMicForSymbol(t *testing.T) {
	assert.Equal(t, "xnys", micForSymbol("AAPL"))
	assert.Equal(t, "xlon", micForSymbol("VOD.L"))
	assert.Equal(t, "xpar", micForSymbol("AIR.PA"))
	assert.Equal(t, "xtks", micForSymbol("7203.T"))
	assert.Equal(t, "xtse", micForSymbol("SHOP.TO"))
}

// -----------------------------------------------------------------------------

func TestFallbackCalendar_WeekendClosed(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	assert.NoError(t, err)
	cal := &TradingCalendar{Fallback: true, Timezone: ny}

	saturday := time.Date(2026, 8, 22, 12, 0, 0, 0, ny)
	assert.False(t, cal.IsTradingDay(saturday))
	assert.False(t, cal.IsOpenAt(saturday))

	wednesday := time.Date(2026, 8, 19, 12, 0, 0, 0, ny)
	assert.True(t, cal.IsTradingDay(wednesday))
}

// -----------------------------------------------------------------------------

func TestFallbackCalendar_SessionHours(t *testing.T) {
	ny, _ := time.LoadLocation("America/New_York")
	cal := &TradingCalendar{Fallback: true, Timezone: ny}

	day := time.Date(2026, 8, 19, 0, 0, 0, 0, ny) // a Wednesday

	assert.False(t, cal.IsOpenAt(day.Add(9*time.Hour)), "before the open")
	assert.False(t, cal.IsOpenAt(day.Add(9*time.Hour+29*time.Minute)))
	assert.True(t, cal.IsOpenAt(day.Add(9*time.Hour+30*time.Minute)), "opening bell")
	assert.True(t, cal.IsOpenAt(day.Add(12*time.Hour)))
	assert.False(t, cal.IsOpenAt(day.Add(16*time.Hour)), "after the close")
}

// -----------------------------------------------------------------------------

func TestGetCalendar_AlwaysReturnsACalendar(t *testing.T) {
	cal := GetCalendar("AAPL")
	assert.NotNil(t, cal)
	assert.NotNil(t, cal.Timezone)

	cal = GetCalendar("UNKNOWN.ZZ")
	assert.NotNil(t, cal, "unknown suffix falls back to NYSE hours")
}

// -----------------------------------------------------------------------------

func TestMarkets_TrackSymbolIsIdempotent(t *testing.T) {
	m := NewMarkets([]string{"AAPL"}, logger.NewLogger("ERROR", "test"))
	assert.Len(t, m.Calendars, 1)

	m.TrackSymbol("AAPL")
	assert.Len(t, m.Calendars, 1)

	m.TrackSymbol("MSFT")
	assert.Len(t, m.Calendars, 2)
}

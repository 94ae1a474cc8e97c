package utils

import (
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers market-hours questions for one exchange,
// falling back to a Mon-Fri 09:30-16:00 New York window when the MIC is
// not covered by the calendar library.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// micForSymbol maps a ticker suffix to an ISO 10383 MIC code. Plain US
// tickers have no suffix and trade on NYSE hours.
func micForSymbol(symbol string) string {
	switch {
	case strings.HasSuffix(symbol, ".L"):
		return "xlon"
	case strings.HasSuffix(symbol, ".PA"):
		return "xpar"
	case strings.HasSuffix(symbol, ".DE"):
		return "xfra"
	case strings.HasSuffix(symbol, ".AS"):
		return "xams"
	case strings.HasSuffix(symbol, ".MI"):
		return "xmil"
	case strings.HasSuffix(symbol, ".SW"):
		return "xswx"
	case strings.HasSuffix(symbol, ".TO"):
		return "xtse"
	case strings.HasSuffix(symbol, ".T"):
		return "xtks"
	case strings.HasSuffix(symbol, ".HK"):
		return "xhkg"
	case strings.HasSuffix(symbol, ".AX"):
		return "xasx"
	case strings.HasSuffix(symbol, ".SS"):
		return "xshg"
	case strings.HasSuffix(symbol, ".SZ"):
		return "xshe"
	}
	return "xnys"
}

// -----------------------------------------------------------------------------

// GetCalendar returns the trading calendar for a symbol's exchange.
func GetCalendar(symbol string) *TradingCalendar {
	mic := micForSymbol(symbol)

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}

	if cal == nil {
		nyLoc, _ := time.LoadLocation("America/New_York")
		if nyLoc == nil {
			nyLoc = time.UTC
		}
		return &TradingCalendar{Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{Calendar: cal, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenAt checks whether the market is open at a specific instant.
func (tc *TradingCalendar) IsOpenAt(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}
		hour := t.Hour()
		minute := t.Minute()
		return (hour > 9 || (hour == 9 && minute >= 30)) && hour < 16
	}

	return tc.Calendar.IsOpen(t)
}

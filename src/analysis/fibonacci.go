package analysis

import (
	"fmt"

	"stock-charter/src/models"
)

// RetracementRatios are the standard Fibonacci levels applied to a
// swing high/low range.
var RetracementRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

// -----------------------------------------------------------------------------

// Level is one retracement line.
type Level struct {
	Ratio float64 `json:"ratio"`
	Price float64 `json:"price"`
}

// Retracement is the full data contract consumed by the chart overlay.
type Retracement struct {
	Symbol    string  `json:"symbol"`
	Lookback  int     `json:"lookback"`
	SwingHigh float64 `json:"swing_high"`
	SwingLow  float64 `json:"swing_low"`
	Levels    []Level `json:"levels"`
}

// -----------------------------------------------------------------------------

// SwingRange returns the highest high and lowest low over the last
// lookback bars. Bars are expected ordered by time ascending.
func SwingRange(bars []models.MPriceBar, lookback int) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, fmt.Errorf("no bars")
	}
	if lookback <= 0 || lookback > len(bars) {
		lookback = len(bars)
	}

	window := bars[len(bars)-lookback:]
	high = window[0].High
	low = window[0].Low
	for _, b := range window[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, nil
}

// -----------------------------------------------------------------------------

// Levels computes retracement prices from a swing range, measured down
// from the high: ratio 0 sits at the swing high, ratio 1 at the swing low.
func Levels(high, low float64) []Level {
	span := high - low
	levels := make([]Level, 0, len(RetracementRatios))
	for _, r := range RetracementRatios {
		levels = append(levels, Level{Ratio: r, Price: high - r*span})
	}
	return levels
}

// -----------------------------------------------------------------------------

// Retracements builds the overlay contract for a symbol's cached bars.
func Retracements(symbol string, bars []models.MPriceBar, lookback int) (*Retracement, error) {
	high, low, err := SwingRange(bars, lookback)
	if err != nil {
		return nil, fmt.Errorf("retracement for %s: %w", symbol, err)
	}
	if lookback <= 0 || lookback > len(bars) {
		lookback = len(bars)
	}
	return &Retracement{
		Symbol:    symbol,
		Lookback:  lookback,
		SwingHigh: high,
		SwingLow:  low,
		Levels:    Levels(high, low),
	}, nil
}

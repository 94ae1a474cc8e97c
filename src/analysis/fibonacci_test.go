package analysis

import (
	"testing"

	"stock-charter/src/models"

	"github.com/stretchr/testify/assert"
)

func testBars() []models.MPriceBar {
	return []models.MPriceBar{
		{Symbol: "AAPL", Timestamp: 1, High: 110, Low: 90},
		{Symbol: "AAPL", Timestamp: 2, High: 150, Low: 100},
		{Symbol: "AAPL", Timestamp: 3, High: 140, Low: 50},
		{Symbol: "AAPL", Timestamp: 4, High: 130, Low: 95},
	}
}

// -----------------------------------------------------------------------------

func TestSwingRange_FullWindow(t *testing.T) {
	high, low, err := SwingRange(testBars(), 4)
	assert.NoError(t, err)
	assert.Equal(t, 150.0, high)
	assert.Equal(t, 50.0, low)
}

func TestSwingRange_LookbackTrimsOldBars(t *testing.T) {
	// Last two bars only: the 150 high and 50 low fall outside
	high, low, err := SwingRange(testBars(), 2)
	assert.NoError(t, err)
	assert.Equal(t, 140.0, high)
	assert.Equal(t, 50.0, low)

	high, low, err = SwingRange(testBars(), 1)
	assert.NoError(t, err)
	assert.Equal(t, 130.0, high)
	assert.Equal(t, 95.0, low)
}

func TestSwingRange_OversizedLookbackUsesAllBars(t *testing.T) {
	high, low, err := SwingRange(testBars(), 500)
	assert.NoError(t, err)
	assert.Equal(t, 150.0, high)
	assert.Equal(t, 50.0, low)
}

func TestSwingRange_NoBarsIsError(t *testing.T) {
	_, _, err := SwingRange(nil, 10)
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------

func TestLevels_MeasuredDownFromHigh(t *testing.T) {
	levels := Levels(200, 100)
	assert.Len(t, levels, len(RetracementRatios))

	assert.Equal(t, 0.0, levels[0].Ratio)
	assert.Equal(t, 200.0, levels[0].Price, "ratio 0 sits at the swing high")

	assert.Equal(t, 0.5, levels[3].Ratio)
	assert.Equal(t, 150.0, levels[3].Price)

	assert.Equal(t, 1.0, levels[len(levels)-1].Ratio)
	assert.Equal(t, 100.0, levels[len(levels)-1].Price, "ratio 1 sits at the swing low")

	assert.InDelta(t, 200-0.618*100, levels[4].Price, 1e-9)
}

// -----------------------------------------------------------------------------

func TestRetracements_BuildsContract(t *testing.T) {
	r, err := Retracements("AAPL", testBars(), 500)
	assert.NoError(t, err)
	assert.Equal(t, "AAPL", r.Symbol)
	assert.Equal(t, 4, r.Lookback, "oversized lookback clamps to available bars")
	assert.Equal(t, 150.0, r.SwingHigh)
	assert.Equal(t, 50.0, r.SwingLow)
	assert.Len(t, r.Levels, len(RetracementRatios))
}

func TestRetracements_NoBarsIsError(t *testing.T) {
	_, err := Retracements("AAPL", nil, 90)
	assert.Error(t, err)
}

package tracking

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"stock-charter/src/logger"
	"stock-charter/src/models"
	"stock-charter/src/storage"

	"github.com/stretchr/testify/assert"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()

	cfg := &models.MConfig{
		Storage: models.MStorageConfig{
			DBType: "sqlite",
			DBPath: filepath.Join(t.TempDir(), "tracking.db"),
		},
	}
	store, err := storage.NewSQLiteStore(cfg, logger.NewLogger("ERROR", "test"))
	assert.NoError(t, err)
	assert.NoError(t, store.Initialize())
	t.Cleanup(func() { store.Close() })

	return NewTracker(store, logger.NewLogger("ERROR", "test"))
}

// -----------------------------------------------------------------------------

func TestTracker_RegisterClampsPriority(t *testing.T) {
	tr := newTestTracker(t)

	assert.NoError(t, tr.RegisterSymbol("AAPL", 99))
	rec, err := tr.Status("AAPL")
	assert.NoError(t, err)
	assert.Equal(t, models.PriorityLowest, rec.Priority)

	assert.NoError(t, tr.RegisterSymbol("MSFT", -5))
	rec, _ = tr.Status("MSFT")
	assert.Equal(t, models.PriorityHighest, rec.Priority)
}

// -----------------------------------------------------------------------------

func TestTracker_StatusNilForUnknownSymbol(t *testing.T) {
	tr := newTestTracker(t)

	rec, err := tr.Status("GHOST")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

// -----------------------------------------------------------------------------

func TestTracker_CircuitBreakerTripsAtThreshold(t *testing.T) {
	tr := newTestTracker(t)

	assert.NoError(t, tr.RegisterSymbol("AAPL", 1))

	cause := errors.New("upstream down")
	for i := 0; i < MaxConsecutiveFailures; i++ {
		assert.NoError(t, tr.StampFailure("AAPL", cause))
	}

	rec, _ := tr.Status("AAPL")
	assert.Equal(t, MaxConsecutiveFailures, rec.FailureCount)

	// Tripped symbols disappear from scheduling
	records, err := tr.FindSymbolsNeedingUpdate(models.UpdateTypePrice, 12*time.Hour, 10)
	assert.NoError(t, err)
	assert.Empty(t, records)
}

// -----------------------------------------------------------------------------

func TestTracker_SuccessResetsFailureStreak(t *testing.T) {
	tr := newTestTracker(t)

	assert.NoError(t, tr.RegisterSymbol("AAPL", 1))
	assert.NoError(t, tr.StampFailure("AAPL", errors.New("once")))
	assert.NoError(t, tr.StampFailure("AAPL", errors.New("twice")))

	assert.NoError(t, tr.StampSuccess("AAPL", models.UpdateTypePrice))

	rec, _ := tr.Status("AAPL")
	assert.Equal(t, 0, rec.FailureCount, "intervening success must break the streak")
	assert.Equal(t, "", rec.LastError)
}

// -----------------------------------------------------------------------------

func TestTracker_ReRegistrationClearsTrippedBreaker(t *testing.T) {
	tr := newTestTracker(t)

	assert.NoError(t, tr.RegisterSymbol("AAPL", 1))
	for i := 0; i < MaxConsecutiveFailures; i++ {
		assert.NoError(t, tr.StampFailure("AAPL", errors.New("down")))
	}

	// The user asks for the symbol again
	assert.NoError(t, tr.RegisterSymbol("AAPL", 1))

	rec, _ := tr.Status("AAPL")
	assert.Equal(t, 0, rec.FailureCount, "re-registration is the manual reset")

	records, err := tr.FindSymbolsNeedingUpdate(models.UpdateTypePrice, 12*time.Hour, 10)
	assert.NoError(t, err)
	assert.Len(t, records, 1, "symbol is schedulable again")
}

// -----------------------------------------------------------------------------

func TestTracker_DeactivateRemovesFromScheduling(t *testing.T) {
	tr := newTestTracker(t)

	assert.NoError(t, tr.RegisterSymbol("AAPL", 1))
	assert.NoError(t, tr.Deactivate("AAPL"))

	records, err := tr.FindSymbolsNeedingUpdate(models.UpdateTypePrice, 12*time.Hour, 10)
	assert.NoError(t, err)
	assert.Empty(t, records)

	rec, _ := tr.Status("AAPL")
	assert.False(t, rec.Active, "deactivated symbol keeps its row")
}

// -----------------------------------------------------------------------------

func TestTracker_FindSymbolsNeedingUpdatePerType(t *testing.T) {
	tr := newTestTracker(t)

	assert.NoError(t, tr.RegisterSymbol("AAPL", 1))
	assert.NoError(t, tr.StampSuccess("AAPL", models.UpdateTypePrice))

	// Freshly priced, never had an overview
	fresh, err := tr.FindSymbolsNeedingUpdate(models.UpdateTypePrice, 12*time.Hour, 10)
	assert.NoError(t, err)
	assert.Empty(t, fresh, "just-updated symbol is not stale")

	overview, err := tr.FindSymbolsNeedingUpdate(models.UpdateTypeOverview, 12*time.Hour, 10)
	assert.NoError(t, err)
	assert.Len(t, overview, 1, "staleness is tracked per update type")
}

package storage

import (
	"path/filepath"
	"testing"
	"time"

	"stock-charter/src/logger"
	"stock-charter/src/models"

	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	cfg := &models.MConfig{
		Storage: models.MStorageConfig{
			DBType: "sqlite",
			DBPath: filepath.Join(t.TempDir(), "test.db"),
		},
	}
	store, err := NewSQLiteStore(cfg, logger.NewLogger("ERROR", "test"))
	assert.NoError(t, err)
	assert.NoError(t, store.Initialize())
	t.Cleanup(func() { store.Close() })
	return store
}

// -----------------------------------------------------------------------------

func TestSQLite_UpsertPriceBarsDedupes(t *testing.T) {
	store := newTestStore(t)

	bars := []models.MPriceBar{
		{Symbol: "AAPL", Timestamp: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		{Symbol: "AAPL", Timestamp: 2000, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 200},
	}
	assert.NoError(t, store.UpsertPriceBars("AAPL", bars))

	// Overlapping write: same timestamps, revised close
	bars[1].Close = 2.25
	assert.NoError(t, store.UpsertPriceBars("AAPL", bars))

	got, err := store.GetPriceBars("AAPL")
	assert.NoError(t, err)
	assert.Len(t, got, 2, "re-upsert must not duplicate rows")
	assert.Equal(t, 2.25, got[1].Close, "latest write wins")
	assert.Equal(t, int64(1000), got[0].Timestamp, "bars come back time-ascending")
}

// -----------------------------------------------------------------------------

func TestSQLite_HasPriceDataAndListSymbols(t *testing.T) {
	store := newTestStore(t)

	has, err := store.HasPriceData("AAPL")
	assert.NoError(t, err)
	assert.False(t, has)

	assert.NoError(t, store.UpsertPriceBars("AAPL", []models.MPriceBar{{Symbol: "AAPL", Timestamp: 1}}))
	assert.NoError(t, store.UpsertPriceBars("MSFT", []models.MPriceBar{{Symbol: "MSFT", Timestamp: 1}}))

	has, err = store.HasPriceData("AAPL")
	assert.NoError(t, err)
	assert.True(t, has)

	symbols, err := store.ListSymbols()
	assert.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}

// -----------------------------------------------------------------------------

func TestSQLite_FundamentalsRoundTrip(t *testing.T) {
	store := newTestStore(t)

	missing, err := store.GetFundamentals("AAPL")
	assert.NoError(t, err)
	assert.Nil(t, missing, "absent fundamentals come back nil, not an error")

	f := models.MFundamentals{
		Symbol: "AAPL", MarketCap: 3.4e12, PERatio: 34.5, DividendYield: 0.0044,
		High52w: 260.1, Low52w: 169.21, Beta: 1.24, EPS: 6.59, UpdatedAt: 1700000000,
	}
	assert.NoError(t, store.UpsertFundamentals(f))

	got, err := store.GetFundamentals("AAPL")
	assert.NoError(t, err)
	assert.Equal(t, f, *got)

	// Second upsert replaces
	f.PERatio = 30
	assert.NoError(t, store.UpsertFundamentals(f))
	got, _ = store.GetFundamentals("AAPL")
	assert.Equal(t, 30.0, got.PERatio)
}

// -----------------------------------------------------------------------------

func TestSQLite_IncomeStatementsLimitAndOrder(t *testing.T) {
	store := newTestStore(t)

	periods := []models.MIncomeStatement{
		{Symbol: "AAPL", FiscalDateEnding: "2022-09-30", Revenue: 1},
		{Symbol: "AAPL", FiscalDateEnding: "2023-09-30", Revenue: 2},
		{Symbol: "AAPL", FiscalDateEnding: "2024-09-30", Revenue: 3},
	}
	assert.NoError(t, store.UpsertIncomeStatements("AAPL", periods))

	got, err := store.GetIncomeStatements("AAPL", 2)
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "2024-09-30", got[0].FiscalDateEnding, "newest period first")
	assert.Equal(t, "2023-09-30", got[1].FiscalDateEnding)
}

// -----------------------------------------------------------------------------

func TestSQLite_RegisterAndStampLifecycle(t *testing.T) {
	store := newTestStore(t)
	now := time.Unix(1700000000, 0)

	// Stamping an unregistered symbol is an error
	err := store.StampSuccess("GHOST", models.UpdateTypePrice, now)
	assert.Error(t, err)

	assert.NoError(t, store.RegisterSymbol("AAPL", 2, now))

	rec, err := store.GetUpdateRecord("AAPL")
	assert.NoError(t, err)
	assert.Equal(t, 2, rec.Priority)
	assert.True(t, rec.Active)
	assert.Equal(t, int64(0), rec.LastPriceUpdate, "fresh registration has no update stamps")

	later := now.Add(time.Hour)
	assert.NoError(t, store.StampSuccess("AAPL", models.UpdateTypePrice, later))

	rec, _ = store.GetUpdateRecord("AAPL")
	assert.Equal(t, later.Unix(), rec.LastPriceUpdate)
	assert.Equal(t, int64(0), rec.LastOverviewUpdate, "price stamp must not touch other types")
}

// -----------------------------------------------------------------------------

func TestSQLite_FailureCountAndClear(t *testing.T) {
	store := newTestStore(t)
	now := time.Unix(1700000000, 0)

	assert.NoError(t, store.RegisterSymbol("AAPL", 2, now))
	assert.NoError(t, store.StampFailure("AAPL", "timeout", now))
	assert.NoError(t, store.StampFailure("AAPL", "timeout again", now))

	rec, _ := store.GetUpdateRecord("AAPL")
	assert.Equal(t, 2, rec.FailureCount)
	assert.Equal(t, "timeout again", rec.LastError)

	// Success resets the streak
	assert.NoError(t, store.StampSuccess("AAPL", models.UpdateTypePrice, now))
	rec, _ = store.GetUpdateRecord("AAPL")
	assert.Equal(t, 0, rec.FailureCount)
	assert.Equal(t, "", rec.LastError)

	// ClearFailures resets without stamping an update
	assert.NoError(t, store.StampFailure("AAPL", "broken", now))
	assert.NoError(t, store.ClearFailures("AAPL", now))
	rec, _ = store.GetUpdateRecord("AAPL")
	assert.Equal(t, 0, rec.FailureCount)
}

// -----------------------------------------------------------------------------

func TestSQLite_FindSymbolsNeedingUpdate(t *testing.T) {
	store := newTestStore(t)
	now := time.Unix(1700000000, 0)
	cutoff := now.Add(-12 * time.Hour)

	// NEVER: registered, never updated -> included
	assert.NoError(t, store.RegisterSymbol("NEVER", 3, now))

	// FRESH: updated after the cutoff -> excluded
	assert.NoError(t, store.RegisterSymbol("FRESH", 1, now))
	assert.NoError(t, store.StampSuccess("FRESH", models.UpdateTypePrice, now))

	// STALE: updated before the cutoff, high priority -> included first
	assert.NoError(t, store.RegisterSymbol("STALE", 1, now))
	assert.NoError(t, store.StampSuccess("STALE", models.UpdateTypePrice, now.Add(-24*time.Hour)))

	// TRIPPED: stale but past the failure threshold -> excluded
	assert.NoError(t, store.RegisterSymbol("TRIPPED", 1, now))
	for i := 0; i < 3; i++ {
		assert.NoError(t, store.StampFailure("TRIPPED", "boom", now))
	}

	// OFF: stale but deactivated -> excluded
	assert.NoError(t, store.RegisterSymbol("OFF", 1, now))
	assert.NoError(t, store.SetSymbolActive("OFF", false, now))

	records, err := store.FindSymbolsNeedingUpdate(models.UpdateTypePrice, cutoff, 3, 10)
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "STALE", records[0].Symbol, "priority 1 outranks priority 3")
	assert.Equal(t, "NEVER", records[1].Symbol)
}

// -----------------------------------------------------------------------------

func TestSQLite_FindSymbolsNeedingUpdateRespectsLimit(t *testing.T) {
	store := newTestStore(t)
	now := time.Unix(1700000000, 0)

	for _, s := range []string{"A", "B", "C"} {
		assert.NoError(t, store.RegisterSymbol(s, 2, now))
	}

	records, err := store.FindSymbolsNeedingUpdate(models.UpdateTypePrice, now, 3, 2)
	assert.NoError(t, err)
	assert.Len(t, records, 2)
}

// -----------------------------------------------------------------------------

func TestSQLite_QuotaStateRoundTrip(t *testing.T) {
	store := newTestStore(t)

	missing, err := store.LoadQuotaState("alphavantage")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	st := models.MQuotaState{
		Provider:        "alphavantage",
		CallsToday:      7,
		CallsThisMinute: 2,
		LastCallAt:      time.Unix(1700000000, 0),
		DayResetAt:      time.Unix(1700086400, 0),
		MinuteResetAt:   time.Unix(1700000060, 0),
		DailyLimit:      25,
		MinuteLimit:     5,
	}
	assert.NoError(t, store.SaveQuotaState(st))

	got, err := store.LoadQuotaState("alphavantage")
	assert.NoError(t, err)
	assert.Equal(t, 7, got.CallsToday)
	assert.Equal(t, st.DayResetAt.Unix(), got.DayResetAt.Unix())

	// Overwrite
	st.CallsToday = 8
	assert.NoError(t, store.SaveQuotaState(st))
	got, _ = store.LoadQuotaState("alphavantage")
	assert.Equal(t, 8, got.CallsToday)
}

// -----------------------------------------------------------------------------

func TestSQLite_RegisterReactivates(t *testing.T) {
	store := newTestStore(t)
	now := time.Unix(1700000000, 0)

	assert.NoError(t, store.RegisterSymbol("AAPL", 4, now))
	assert.NoError(t, store.SetSymbolActive("AAPL", false, now))

	assert.NoError(t, store.RegisterSymbol("AAPL", 1, now.Add(time.Hour)))
	rec, _ := store.GetUpdateRecord("AAPL")
	assert.True(t, rec.Active, "re-registration reactivates")
	assert.Equal(t, 1, rec.Priority, "re-registration updates priority")
}

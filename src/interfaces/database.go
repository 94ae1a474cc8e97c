package interfaces

import (
	"time"

	"stock-charter/src/models"
)

// -----------------------------------------------------------------------------
// IStockStore defines the contract for the persistent cache.
// Implementations must make every multi-row write atomic and must keep
// readers usable while a write is in progress (WAL or equivalent).
// -----------------------------------------------------------------------------

type IStockStore interface {

	// Initialize sets up the schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------
	// Price series

	// UpsertPriceBars writes a batch of bars for one symbol, overwriting
	// rows that share (symbol, timestamp). All rows land or none do.
	UpsertPriceBars(symbol string, bars []models.MPriceBar) error

	// GetPriceBars returns all cached bars for a symbol ordered by time.
	GetPriceBars(symbol string) ([]models.MPriceBar, error)

	// HasPriceData reports whether any bars exist for the symbol.
	HasPriceData(symbol string) (bool, error)

	// ListSymbols returns every symbol with at least one cached bar.
	ListSymbols() ([]string, error)

	// -----------------------------------------------------------------------------
	// Fundamentals and income statements

	UpsertFundamentals(f models.MFundamentals) error
	GetFundamentals(symbol string) (*models.MFundamentals, error)

	UpsertIncomeStatements(symbol string, periods []models.MIncomeStatement) error

	// GetIncomeStatements returns up to limit periods, most recent first.
	GetIncomeStatements(symbol string, limit int) ([]models.MIncomeStatement, error)

	// -----------------------------------------------------------------------------
	// Update tracking rows

	// RegisterSymbol upserts a tracking row and reactivates the symbol.
	RegisterSymbol(symbol string, priority int, now time.Time) error

	GetUpdateRecord(symbol string) (*models.MUpdateRecord, error)

	// StampSuccess sets the per-type last-update instant, zeroes the
	// failure count and clears the stored error.
	StampSuccess(symbol, updateType string, now time.Time) error

	// StampFailure increments the failure count and records the message.
	StampFailure(symbol, message string, now time.Time) error

	// ClearFailures zeroes the failure count and stored error without
	// touching any last-update instant.
	ClearFailures(symbol string, now time.Time) error

	SetSymbolActive(symbol string, active bool, now time.Time) error

	// FindSymbolsNeedingUpdate selects active symbols whose per-type
	// last-update is missing or older than cutoff, excluding symbols at or
	// above maxFailures, ordered by priority then staleness, capped at limit.
	FindSymbolsNeedingUpdate(updateType string, cutoff time.Time, maxFailures, limit int) ([]models.MUpdateRecord, error)

	// -----------------------------------------------------------------------------
	// Provider quota rows

	LoadQuotaState(provider string) (*models.MQuotaState, error)
	SaveQuotaState(state models.MQuotaState) error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}

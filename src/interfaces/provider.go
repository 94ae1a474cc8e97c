package interfaces

import "stock-charter/src/models"

// -----------------------------------------------------------------------------
// IProvider is the uniform fetch-and-normalize contract over one upstream
// market-data API. Implementations own their schema normalization; callers
// receive canonical models regardless of provider.
// -----------------------------------------------------------------------------

type IProvider interface {

	// Name returns the unique identifier of the provider.
	Name() string

	// Supports reports whether the provider implements the update type.
	Supports(updateType string) bool

	// FetchDailyBars retrieves the daily OHLCV series for a symbol.
	FetchDailyBars(symbol string) ([]models.MPriceBar, error)

	// FetchFundamentals retrieves the company overview snapshot.
	FetchFundamentals(symbol string) (*models.MFundamentals, error)

	// FetchIncomeStatements retrieves annual income statement periods.
	FetchIncomeStatements(symbol string) ([]models.MIncomeStatement, error)
}

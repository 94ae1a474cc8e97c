package models

// MPriceBar represents one stored OHLCV candle.
// Uniqueness is (symbol, timestamp); re-fetches overwrite in place.
type MPriceBar struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// MFundamentals is the latest company overview snapshot for a symbol.
// One row per symbol, overwritten wholesale on refresh.
// MarketCap is in whole dollars, DividendYield is a fraction (0.0065 = 0.65%)
// regardless of how the upstream provider reports them.
type MFundamentals struct {
	Symbol           string  `json:"symbol"`
	MarketCap        float64 `json:"market_cap"`
	PERatio          float64 `json:"pe_ratio"`
	DividendYield    float64 `json:"dividend_yield"`
	DividendPerShare float64 `json:"dividend_per_share"`
	High52w          float64 `json:"high_52w"`
	Low52w           float64 `json:"low_52w"`
	Beta             float64 `json:"beta"`
	EPS              float64 `json:"eps"`
	BookValue        float64 `json:"book_value"`
	ProfitMargin     float64 `json:"profit_margin"`
	OperatingMargin  float64 `json:"operating_margin"`
	UpdatedAt        int64   `json:"updated_at"`
}

// MIncomeStatement is one fiscal period of income statement figures.
// Uniqueness is (symbol, fiscal_date_ending).
type MIncomeStatement struct {
	Symbol            string  `json:"symbol"`
	FiscalDateEnding  string  `json:"fiscal_date_ending"` // YYYY-MM-DD
	Revenue           float64 `json:"revenue"`
	OperatingExpenses float64 `json:"operating_expenses"`
	NetIncome         float64 `json:"net_income"`
	EBITDA            float64 `json:"ebitda"`
	EPS               float64 `json:"eps"`
	GrossProfit       float64 `json:"gross_profit"`
}

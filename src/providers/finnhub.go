package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stock-charter/src/interfaces"
	"stock-charter/src/logger"
	"stock-charter/src/models"
	"stock-charter/src/network"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

// ProviderFinnhub is the canonical name used in config and quota rows.
const ProviderFinnhub = "finnhub"

// candleLookbackDays bounds the daily candle request window.
const candleLookbackDays = 180

// -----------------------------------------------------------------------------
// Finnhub implements IProvider over the Finnhub REST API. Finnhub reports
// market cap in millions and yields/margins as percentages, so this adapter
// normalizes them to whole dollars and fractions.
// -----------------------------------------------------------------------------

type Finnhub struct {
	APIKey  string
	Network interfaces.INetworkManager
	Logger  *logger.Logger
	now     func() time.Time
}

// -----------------------------------------------------------------------------

func NewFinnhub(apiKey string, netMgr interfaces.INetworkManager, log *logger.Logger) *Finnhub {
	return &Finnhub{
		APIKey:  apiKey,
		Network: netMgr,
		Logger:  log,
		now:     time.Now,
	}
}

// -----------------------------------------------------------------------------

func (p *Finnhub) Name() string { return ProviderFinnhub }

func (p *Finnhub) Supports(updateType string) bool {
	return models.IsUpdateType(updateType)
}

// -----------------------------------------------------------------------------

func (p *Finnhub) query(path string, params map[string]string) ([]byte, error) {
	params["token"] = p.APIKey

	body, err := p.Network.Get(finnhubBaseURL+path, params)
	if err != nil {
		if errors.Is(err, network.ErrRateLimited) {
			return nil, &RateLimitError{Provider: p.Name(), Message: "HTTP 429"}
		}
		return nil, &TransportError{Provider: p.Name(), Err: err}
	}

	// Finnhub reports auth and limit problems inside a 200 payload.
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
		if strings.Contains(strings.ToLower(envelope.Error), "limit") {
			return nil, &RateLimitError{Provider: p.Name(), Message: envelope.Error}
		}
		return nil, &ShapeError{Provider: p.Name(), Detail: envelope.Error}
	}

	return body, nil
}

// -----------------------------------------------------------------------------
// Daily candles
// -----------------------------------------------------------------------------

type fhCandleResponse struct {
	Open   []float64 `json:"o"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Close  []float64 `json:"c"`
	Volume []float64 `json:"v"`
	Times  []int64   `json:"t"`
	Status string    `json:"s"`
}

func (p *Finnhub) FetchDailyBars(symbol string) ([]models.MPriceBar, error) {
	to := p.now().Unix()
	from := to - candleLookbackDays*24*3600

	body, err := p.query("/stock/candle", map[string]string{
		"symbol":     symbol,
		"resolution": "D",
		"from":       strconv.FormatInt(from, 10),
		"to":         strconv.FormatInt(to, 10),
	})
	if err != nil {
		return nil, err
	}

	var resp fhCandleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ShapeError{Provider: p.Name(), Detail: fmt.Sprintf("candle decode: %v", err)}
	}
	if resp.Status != "ok" {
		return nil, &ShapeError{Provider: p.Name(), Detail: fmt.Sprintf("candle status %q", resp.Status)}
	}
	n := len(resp.Times)
	if n == 0 || len(resp.Open) != n || len(resp.High) != n || len(resp.Low) != n ||
		len(resp.Close) != n || len(resp.Volume) != n {
		return nil, &ShapeError{Provider: p.Name(), Detail: "candle arrays missing or misaligned"}
	}

	bars := make([]models.MPriceBar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, models.MPriceBar{
			Symbol:    symbol,
			Timestamp: resp.Times[i],
			Open:      resp.Open[i],
			High:      resp.High[i],
			Low:       resp.Low[i],
			Close:     resp.Close[i],
			Volume:    resp.Volume[i],
		})
	}
	return bars, nil
}

// -----------------------------------------------------------------------------
// Company metrics
// -----------------------------------------------------------------------------

type fhMetricResponse struct {
	Metric map[string]interface{} `json:"metric"`
}

func (p *Finnhub) FetchFundamentals(symbol string) (*models.MFundamentals, error) {
	body, err := p.query("/stock/metric", map[string]string{
		"symbol": symbol,
		"metric": "all",
	})
	if err != nil {
		return nil, err
	}

	var resp fhMetricResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ShapeError{Provider: p.Name(), Detail: fmt.Sprintf("metric decode: %v", err)}
	}
	if len(resp.Metric) == 0 {
		return nil, &ShapeError{Provider: p.Name(), Detail: "missing metric map"}
	}

	m := resp.Metric
	return &models.MFundamentals{
		Symbol:           symbol,
		MarketCap:        fhNum(m, "marketCapitalization") * 1e6, // reported in millions
		PERatio:          fhNum(m, "peTTM", "peBasicExclExtraTTM"),
		DividendYield:    fhNum(m, "dividendYieldIndicatedAnnual", "currentDividendYieldTTM") / 100, // reported as percentage
		DividendPerShare: fhNum(m, "dividendPerShareAnnual", "dividendPerShareTTM"),
		High52w:          fhNum(m, "52WeekHigh"),
		Low52w:           fhNum(m, "52WeekLow"),
		Beta:             fhNum(m, "beta"),
		EPS:              fhNum(m, "epsTTM", "epsBasicExclExtraItemsTTM"),
		BookValue:        fhNum(m, "bookValuePerShareQuarterly", "bookValuePerShareAnnual"),
		ProfitMargin:     fhNum(m, "netProfitMarginTTM", "netProfitMarginAnnual") / 100,
		OperatingMargin:  fhNum(m, "operatingMarginTTM", "operatingMarginAnnual") / 100,
	}, nil
}

// fhNum returns the first present numeric metric among the given keys.
func fhNum(m map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f
			}
		}
	}
	return 0
}

// -----------------------------------------------------------------------------
// Reported financials
// -----------------------------------------------------------------------------

type fhConcept struct {
	Concept string      `json:"concept"`
	Unit    string      `json:"unit"`
	Value   interface{} `json:"value"`
}

type fhFinancialsReport struct {
	EndDate string `json:"endDate"`
	Report  struct {
		IncomeStatement []fhConcept `json:"ic"`
	} `json:"report"`
}

type fhFinancialsResponse struct {
	Data []fhFinancialsReport `json:"data"`
}

// GAAP concept alternates, in lookup order. Filers tag the same line item
// under different concepts depending on taxonomy year.
var (
	fhRevenueConcepts = []string{
		"us-gaap_RevenueFromContractWithCustomerExcludingAssessedTax",
		"us-gaap_Revenues",
		"us-gaap_SalesRevenueNet",
	}
	fhOpexConcepts = []string{
		"us-gaap_OperatingExpenses",
		"us-gaap_CostsAndExpenses",
	}
	fhNetIncomeConcepts = []string{
		"us-gaap_NetIncomeLoss",
		"us-gaap_ProfitLoss",
	}
	fhGrossProfitConcepts = []string{
		"us-gaap_GrossProfit",
	}
	fhEPSConcepts = []string{
		"us-gaap_EarningsPerShareBasic",
		"us-gaap_EarningsPerShareBasicAndDiluted",
	}
	fhOperatingIncomeConcepts = []string{
		"us-gaap_OperatingIncomeLoss",
	}
	fhDepreciationConcepts = []string{
		"us-gaap_DepreciationDepletionAndAmortization",
		"us-gaap_DepreciationAmortizationAndAccretionNet",
	}
)

func (p *Finnhub) FetchIncomeStatements(symbol string) ([]models.MIncomeStatement, error) {
	body, err := p.query("/stock/financials-reported", map[string]string{
		"symbol": symbol,
		"freq":   "annual",
	})
	if err != nil {
		return nil, err
	}

	var resp fhFinancialsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ShapeError{Provider: p.Name(), Detail: fmt.Sprintf("financials decode: %v", err)}
	}
	if len(resp.Data) == 0 {
		return nil, &ShapeError{Provider: p.Name(), Detail: "missing financials data"}
	}

	periods := make([]models.MIncomeStatement, 0, len(resp.Data))
	for _, rpt := range resp.Data {
		end := fhFiscalDate(rpt.EndDate)
		if end == "" || len(rpt.Report.IncomeStatement) == 0 {
			continue
		}

		ic := rpt.Report.IncomeStatement
		stmt := models.MIncomeStatement{
			Symbol:            symbol,
			FiscalDateEnding:  end,
			Revenue:           fhConceptValue(ic, fhRevenueConcepts),
			OperatingExpenses: fhConceptValue(ic, fhOpexConcepts),
			NetIncome:         fhConceptValue(ic, fhNetIncomeConcepts),
			GrossProfit:       fhConceptValue(ic, fhGrossProfitConcepts),
			EPS:               fhConceptValue(ic, fhEPSConcepts),
		}

		// No direct EBITDA concept in GAAP filings; derive it when the
		// components are tagged.
		opInc := fhConceptValue(ic, fhOperatingIncomeConcepts)
		depr := fhConceptValue(ic, fhDepreciationConcepts)
		if opInc != 0 {
			stmt.EBITDA = opInc + depr
		}

		periods = append(periods, stmt)
	}
	return periods, nil
}

// fhConceptValue returns the first tagged value among the concept alternates.
func fhConceptValue(items []fhConcept, concepts []string) float64 {
	for _, concept := range concepts {
		for _, item := range items {
			if item.Concept != concept {
				continue
			}
			switch v := item.Value.(type) {
			case float64:
				return v
			case string:
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					return f
				}
			}
		}
	}
	return 0
}

// fhFiscalDate normalizes Finnhub's "2023-09-30 00:00:00" end dates.
func fhFiscalDate(s string) string {
	if s == "" {
		return ""
	}
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return ""
	}
	return s
}

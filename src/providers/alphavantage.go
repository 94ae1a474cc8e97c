package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"stock-charter/src/interfaces"
	"stock-charter/src/logger"
	"stock-charter/src/models"
	"stock-charter/src/network"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// ProviderAlphaVantage is the canonical name used in config and quota rows.
const ProviderAlphaVantage = "alphavantage"

// -----------------------------------------------------------------------------
// AlphaVantage implements IProvider over the Alpha Vantage REST API.
// Alpha Vantage reports dividend yield as a fraction and market cap in
// whole dollars, so its overview values pass through unconverted.
// -----------------------------------------------------------------------------

type AlphaVantage struct {
	APIKey  string
	Network interfaces.INetworkManager
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAlphaVantage(apiKey string, netMgr interfaces.INetworkManager, log *logger.Logger) *AlphaVantage {
	return &AlphaVantage{
		APIKey:  apiKey,
		Network: netMgr,
		Logger:  log,
	}
}

// -----------------------------------------------------------------------------

func (p *AlphaVantage) Name() string { return ProviderAlphaVantage }

func (p *AlphaVantage) Supports(updateType string) bool {
	return models.IsUpdateType(updateType)
}

// -----------------------------------------------------------------------------

// query performs one API call and screens the generic failure shapes every
// Alpha Vantage endpoint shares: a "Note"/"Information" rate-limit notice
// and an "Error Message" for bad symbols or keys.
func (p *AlphaVantage) query(params map[string]string) ([]byte, error) {
	params["apikey"] = p.APIKey

	body, err := p.Network.Get(alphaVantageBaseURL, params)
	if err != nil {
		if errors.Is(err, network.ErrRateLimited) {
			return nil, &RateLimitError{Provider: p.Name(), Message: "HTTP 429"}
		}
		return nil, &TransportError{Provider: p.Name(), Err: err}
	}

	var envelope struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &ShapeError{Provider: p.Name(), Detail: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if envelope.Note != "" {
		return nil, &RateLimitError{Provider: p.Name(), Message: envelope.Note}
	}
	if envelope.Information != "" {
		return nil, &RateLimitError{Provider: p.Name(), Message: envelope.Information}
	}
	if envelope.ErrorMessage != "" {
		return nil, &ShapeError{Provider: p.Name(), Detail: envelope.ErrorMessage}
	}

	return body, nil
}

// -----------------------------------------------------------------------------
// Daily bars
// -----------------------------------------------------------------------------

type avDailyBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

type avDailyResponse struct {
	Series map[string]avDailyBar `json:"Time Series (Daily)"`
}

func (p *AlphaVantage) FetchDailyBars(symbol string) ([]models.MPriceBar, error) {
	body, err := p.query(map[string]string{
		"function":   "TIME_SERIES_DAILY",
		"symbol":     symbol,
		"outputsize": "compact",
	})
	if err != nil {
		return nil, err
	}

	var resp avDailyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ShapeError{Provider: p.Name(), Detail: fmt.Sprintf("daily series decode: %v", err)}
	}
	if len(resp.Series) == 0 {
		return nil, &ShapeError{Provider: p.Name(), Detail: "missing time series key"}
	}

	bars := make([]models.MPriceBar, 0, len(resp.Series))
	for date, raw := range resp.Series {
		day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
		if err != nil {
			p.Logger.Warning("AlphaVantage: skipping bar with bad date %q: %v", date, err)
			continue
		}
		bars = append(bars, models.MPriceBar{
			Symbol:    symbol,
			Timestamp: day.Unix(),
			Open:      avNum(raw.Open),
			High:      avNum(raw.High),
			Low:       avNum(raw.Low),
			Close:     avNum(raw.Close),
			Volume:    avNum(raw.Volume),
		})
	}
	if len(bars) == 0 {
		return nil, &ShapeError{Provider: p.Name(), Detail: "no parsable bars in time series"}
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	return bars, nil
}

// -----------------------------------------------------------------------------
// Company overview
// -----------------------------------------------------------------------------

type avOverviewResponse struct {
	Symbol               string `json:"Symbol"`
	MarketCapitalization string `json:"MarketCapitalization"`
	PERatio              string `json:"PERatio"`
	DividendYield        string `json:"DividendYield"`
	DividendPerShare     string `json:"DividendPerShare"`
	High52Week           string `json:"52WeekHigh"`
	Low52Week            string `json:"52WeekLow"`
	Beta                 string `json:"Beta"`
	EPS                  string `json:"EPS"`
	BookValue            string `json:"BookValue"`
	ProfitMargin         string `json:"ProfitMargin"`
	OperatingMarginTTM   string `json:"OperatingMarginTTM"`
}

func (p *AlphaVantage) FetchFundamentals(symbol string) (*models.MFundamentals, error) {
	body, err := p.query(map[string]string{
		"function": "OVERVIEW",
		"symbol":   symbol,
	})
	if err != nil {
		return nil, err
	}

	var resp avOverviewResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ShapeError{Provider: p.Name(), Detail: fmt.Sprintf("overview decode: %v", err)}
	}
	if resp.Symbol == "" {
		return nil, &ShapeError{Provider: p.Name(), Detail: "overview missing Symbol field"}
	}

	return &models.MFundamentals{
		Symbol:           symbol,
		MarketCap:        avNum(resp.MarketCapitalization),
		PERatio:          avNum(resp.PERatio),
		DividendYield:    avNum(resp.DividendYield),
		DividendPerShare: avNum(resp.DividendPerShare),
		High52w:          avNum(resp.High52Week),
		Low52w:           avNum(resp.Low52Week),
		Beta:             avNum(resp.Beta),
		EPS:              avNum(resp.EPS),
		BookValue:        avNum(resp.BookValue),
		ProfitMargin:     avNum(resp.ProfitMargin),
		OperatingMargin:  avNum(resp.OperatingMarginTTM),
	}, nil
}

// -----------------------------------------------------------------------------
// Income statements
// -----------------------------------------------------------------------------

type avIncomeReport struct {
	FiscalDateEnding  string `json:"fiscalDateEnding"`
	TotalRevenue      string `json:"totalRevenue"`
	OperatingExpenses string `json:"operatingExpenses"`
	NetIncome         string `json:"netIncome"`
	EBITDA            string `json:"ebitda"`
	GrossProfit       string `json:"grossProfit"`
}

type avIncomeResponse struct {
	AnnualReports []avIncomeReport `json:"annualReports"`
}

func (p *AlphaVantage) FetchIncomeStatements(symbol string) ([]models.MIncomeStatement, error) {
	body, err := p.query(map[string]string{
		"function": "INCOME_STATEMENT",
		"symbol":   symbol,
	})
	if err != nil {
		return nil, err
	}

	var resp avIncomeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ShapeError{Provider: p.Name(), Detail: fmt.Sprintf("income statement decode: %v", err)}
	}
	if len(resp.AnnualReports) == 0 {
		return nil, &ShapeError{Provider: p.Name(), Detail: "missing annualReports"}
	}

	periods := make([]models.MIncomeStatement, 0, len(resp.AnnualReports))
	for _, r := range resp.AnnualReports {
		if r.FiscalDateEnding == "" {
			continue
		}
		periods = append(periods, models.MIncomeStatement{
			Symbol:            symbol,
			FiscalDateEnding:  r.FiscalDateEnding,
			Revenue:           avNum(r.TotalRevenue),
			OperatingExpenses: avNum(r.OperatingExpenses),
			NetIncome:         avNum(r.NetIncome),
			EBITDA:            avNum(r.EBITDA),
			GrossProfit:       avNum(r.GrossProfit),
		})
	}
	return periods, nil
}

// -----------------------------------------------------------------------------

// avNum parses Alpha Vantage's stringly-typed numbers. The API uses "None"
// and "-" for absent values.
func avNum(s string) float64 {
	if s == "" || s == "None" || s == "-" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

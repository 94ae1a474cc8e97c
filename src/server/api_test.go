package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stock-charter/src/logger"
	"stock-charter/src/models"
	"stock-charter/src/providers"
	"stock-charter/src/quota"
	"stock-charter/src/tracking"

	"github.com/stretchr/testify/assert"
)

// -----------------------------------------------------------------------------
// Test doubles
// -----------------------------------------------------------------------------

// fakeStore is an in-memory IStockStore covering what the handlers touch.
type fakeStore struct {
	bars       map[string][]models.MPriceBar
	funds      map[string]*models.MFundamentals
	statements map[string][]models.MIncomeStatement
	records    map[string]*models.MUpdateRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bars:       make(map[string][]models.MPriceBar),
		funds:      make(map[string]*models.MFundamentals),
		statements: make(map[string][]models.MIncomeStatement),
		records:    make(map[string]*models.MUpdateRecord),
	}
}

func (f *fakeStore) Initialize() error { return nil }

func (f *fakeStore) UpsertPriceBars(symbol string, bars []models.MPriceBar) error {
	f.bars[symbol] = bars
	return nil
}

func (f *fakeStore) GetPriceBars(symbol string) ([]models.MPriceBar, error) {
	return f.bars[symbol], nil
}

func (f *fakeStore) HasPriceData(symbol string) (bool, error) {
	return len(f.bars[symbol]) > 0, nil
}

func (f *fakeStore) ListSymbols() ([]string, error) { return nil, nil }

func (f *fakeStore) UpsertFundamentals(fd models.MFundamentals) error {
	f.funds[fd.Symbol] = &fd
	return nil
}

func (f *fakeStore) GetFundamentals(symbol string) (*models.MFundamentals, error) {
	return f.funds[symbol], nil
}

func (f *fakeStore) UpsertIncomeStatements(symbol string, periods []models.MIncomeStatement) error {
	f.statements[symbol] = periods
	return nil
}

func (f *fakeStore) GetIncomeStatements(symbol string, limit int) ([]models.MIncomeStatement, error) {
	periods := f.statements[symbol]
	if len(periods) > limit {
		periods = periods[:limit]
	}
	return periods, nil
}

func (f *fakeStore) RegisterSymbol(symbol string, priority int, now time.Time) error {
	f.records[symbol] = &models.MUpdateRecord{Symbol: symbol, Priority: priority, Active: true}
	return nil
}

func (f *fakeStore) GetUpdateRecord(symbol string) (*models.MUpdateRecord, error) {
	return f.records[symbol], nil
}

func (f *fakeStore) StampSuccess(symbol, updateType string, now time.Time) error { return nil }
func (f *fakeStore) StampFailure(symbol, message string, now time.Time) error    { return nil }
func (f *fakeStore) ClearFailures(symbol string, now time.Time) error            { return nil }
func (f *fakeStore) SetSymbolActive(symbol string, active bool, now time.Time) error {
	return nil
}

func (f *fakeStore) FindSymbolsNeedingUpdate(updateType string, cutoff time.Time, maxFailures, limit int) ([]models.MUpdateRecord, error) {
	return nil, nil
}

func (f *fakeStore) LoadQuotaState(provider string) (*models.MQuotaState, error) { return nil, nil }
func (f *fakeStore) SaveQuotaState(state models.MQuotaState) error               { return nil }
func (f *fakeStore) Close() error                                                { return nil }

// -----------------------------------------------------------------------------

// fakeRunner records interactive update requests.
type fakeRunner struct {
	updateErr error
	updated   []string
	enqueued  []string
}

func (r *fakeRunner) UpdateNow(symbol, updateType string) error {
	r.updated = append(r.updated, symbol+"|"+updateType)
	return r.updateErr
}

func (r *fakeRunner) Enqueue(symbol, updateType string, priority int) {
	r.enqueued = append(r.enqueued, symbol+"|"+updateType)
}

// -----------------------------------------------------------------------------

func newTestServer(store *fakeStore, runner *fakeRunner) *APIServer {
	cfg := &models.MConfig{Name: "test", Host: "127.0.0.1", Port: 8089, LogLevel: "ERROR"}
	log := logger.NewLogger("ERROR", "test")

	q := quota.NewTracker([]models.MProviderConfig{
		{Name: "alphavantage", Enabled: true, DailyLimit: 25, MinuteLimit: 5},
	}, nil, log)
	tr := tracking.NewTracker(store, log)

	return NewAPIServer(cfg, store, q, tr, runner, nil, log)
}

func doRequest(s *APIServer, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// -----------------------------------------------------------------------------

func TestAPI_GetBars(t *testing.T) {
	store := newFakeStore()
	store.bars["AAPL"] = []models.MPriceBar{{Symbol: "AAPL", Timestamp: 1000, Close: 227.76}}
	s := newTestServer(store, &fakeRunner{})

	w := doRequest(s, "GET", "/api/bars/aapl", nil)
	assert.Equal(t, http.StatusOK, w.Code, "symbol lookup is case-insensitive")

	var resp struct {
		Symbol string             `json:"symbol"`
		Bars   []models.MPriceBar `json:"bars"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "AAPL", resp.Symbol)
	assert.Len(t, resp.Bars, 1)

	w = doRequest(s, "GET", "/api/bars/GHOST", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// -----------------------------------------------------------------------------

func TestAPI_GetFib(t *testing.T) {
	store := newFakeStore()
	store.bars["AAPL"] = []models.MPriceBar{
		{Symbol: "AAPL", Timestamp: 1, High: 200, Low: 100},
		{Symbol: "AAPL", Timestamp: 2, High: 180, Low: 120},
	}
	s := newTestServer(store, &fakeRunner{})

	w := doRequest(s, "GET", "/api/fib/AAPL?lookback=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		SwingHigh float64 `json:"swing_high"`
		SwingLow  float64 `json:"swing_low"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 200.0, resp.SwingHigh)
	assert.Equal(t, 100.0, resp.SwingLow)

	w = doRequest(s, "GET", "/api/fib/AAPL?lookback=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, "GET", "/api/fib/EMPTY", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no cached bars means no retracement")
}

// -----------------------------------------------------------------------------

func TestAPI_PostSymbolRegistersAndEnqueues(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{}
	s := newTestServer(store, runner)

	w := doRequest(s, "POST", "/api/symbols", map[string]interface{}{"symbol": "nvda", "priority": 2})
	assert.Equal(t, http.StatusCreated, w.Code)

	rec := store.records["NVDA"]
	assert.NotNil(t, rec, "symbol is registered uppercased")
	assert.Equal(t, 2, rec.Priority)
	assert.Equal(t, []string{"NVDA|price"}, runner.enqueued, "registration queues an initial price fetch")

	w = doRequest(s, "POST", "/api/symbols", map[string]interface{}{"priority": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code, "symbol is required")
}

// -----------------------------------------------------------------------------

func TestAPI_PostUpdate(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{}
	s := newTestServer(store, runner)

	w := doRequest(s, "POST", "/api/update", map[string]interface{}{"symbol": "AAPL"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"AAPL|price"}, runner.updated, "update type defaults to price")

	w = doRequest(s, "POST", "/api/update", map[string]interface{}{"symbol": "AAPL", "update_type": "dividends"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_PostUpdateExhaustedIsBadGateway(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{updateErr: &providers.ExhaustedError{Symbol: "AAPL", UpdateType: "price"}}
	s := newTestServer(store, runner)

	w := doRequest(s, "POST", "/api/update", map[string]interface{}{"symbol": "AAPL"})
	assert.Equal(t, http.StatusBadGateway, w.Code, "provider exhaustion is an upstream problem, not ours")
}

// -----------------------------------------------------------------------------

func TestAPI_GetStatus(t *testing.T) {
	store := newFakeStore()
	store.records["AAPL"] = &models.MUpdateRecord{Symbol: "AAPL", Priority: 1, Active: true}
	s := newTestServer(store, &fakeRunner{})

	w := doRequest(s, "GET", "/api/status/AAPL", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, "GET", "/api/status/GHOST", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// -----------------------------------------------------------------------------

func TestAPI_GetQuota(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeRunner{})

	w := doRequest(s, "GET", "/api/quota", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Providers []models.MQuotaStatus `json:"providers"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Providers, 1)
	assert.Equal(t, "alphavantage", resp.Providers[0].Provider)
	assert.Equal(t, 25, resp.Providers[0].DailyLimit)
}

// -----------------------------------------------------------------------------

func TestAPI_GetHealth(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeRunner{})

	w := doRequest(s, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

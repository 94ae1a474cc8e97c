package providers

import (
	"stock-charter/src/interfaces"
	"stock-charter/src/logger"
	"stock-charter/src/models"
	"stock-charter/src/quota"
)

// -----------------------------------------------------------------------------
// Fallback attempts providers sequentially in priority order. Providers
// with no quota headroom are skipped without consuming a slot; providers
// that are invoked consume a slot whether or not the call succeeds.
// Parallel racing is deliberately absent: it would burn quota on
// redundant calls.
// -----------------------------------------------------------------------------

type Fallback struct {
	Providers []interfaces.IProvider // attempt order
	Quota     *quota.Tracker
	Logger    *logger.Logger
}

// -----------------------------------------------------------------------------

func NewFallback(providers []interfaces.IProvider, quotaTracker *quota.Tracker, log *logger.Logger) *Fallback {
	return &Fallback{
		Providers: providers,
		Quota:     quotaTracker,
		Logger:    log,
	}
}

// -----------------------------------------------------------------------------

// attempt walks the provider list for one capability. Returns the name of
// the provider that succeeded, or an ExhaustedError carrying the last
// failure once every provider was skipped or failed.
func (f *Fallback) attempt(symbol, updateType string, call func(interfaces.IProvider) error) (string, error) {
	var lastErr error

	for _, p := range f.Providers {
		if !p.Supports(updateType) {
			continue
		}

		if !f.Quota.CanCall(p.Name()) {
			f.Logger.Info("Skipping %s for %s %s update: quota exhausted", p.Name(), symbol, updateType)
			if lastErr == nil {
				lastErr = ErrQuotaExceeded
			}
			continue
		}

		// The slot is spent as soon as the request goes out.
		f.Quota.RecordCall(p.Name())

		if err := call(p); err != nil {
			lastErr = err
			switch err.(type) {
			case *ShapeError:
				f.Logger.Warning("%s %s %s update failed (possible API contract change): %v", p.Name(), symbol, updateType, err)
			case *RateLimitError:
				f.Logger.Info("%s reported its own rate limit for %s: %v", p.Name(), symbol, err)
			default:
				f.Logger.Info("%s %s %s update failed: %v", p.Name(), symbol, updateType, err)
			}
			continue
		}

		return p.Name(), nil
	}

	return "", &ExhaustedError{Symbol: symbol, UpdateType: updateType, Last: lastErr}
}

// -----------------------------------------------------------------------------

// FetchDailyBars fans out a daily-bar refresh across the provider chain.
func (f *Fallback) FetchDailyBars(symbol string) ([]models.MPriceBar, string, error) {
	var bars []models.MPriceBar
	name, err := f.attempt(symbol, models.UpdateTypePrice, func(p interfaces.IProvider) error {
		fetched, err := p.FetchDailyBars(symbol)
		if err != nil {
			return err
		}
		bars = fetched
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return bars, name, nil
}

// -----------------------------------------------------------------------------

// FetchFundamentals fans out an overview refresh across the provider chain.
func (f *Fallback) FetchFundamentals(symbol string) (*models.MFundamentals, string, error) {
	var snapshot *models.MFundamentals
	name, err := f.attempt(symbol, models.UpdateTypeOverview, func(p interfaces.IProvider) error {
		fetched, err := p.FetchFundamentals(symbol)
		if err != nil {
			return err
		}
		snapshot = fetched
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return snapshot, name, nil
}

// -----------------------------------------------------------------------------

// FetchIncomeStatements fans out a financials refresh across the provider chain.
func (f *Fallback) FetchIncomeStatements(symbol string) ([]models.MIncomeStatement, string, error) {
	var periods []models.MIncomeStatement
	name, err := f.attempt(symbol, models.UpdateTypeFinancials, func(p interfaces.IProvider) error {
		fetched, err := p.FetchIncomeStatements(symbol)
		if err != nil {
			return err
		}
		periods = fetched
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return periods, name, nil
}

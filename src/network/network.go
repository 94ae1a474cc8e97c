package network

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"stock-charter/src/logger"
	"stock-charter/src/models"
)

// ErrRateLimited marks an HTTP 429 from the upstream. The slot for the
// call is already spent, so callers must not retry against the same host.
var ErrRateLimited = errors.New("rate limited by upstream")

// -----------------------------------------------------------------------------

type HTTPManager struct {
	Config *models.MConfig
	Client *http.Client
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewHTTPManager(cfg *models.MConfig, log *logger.Logger) *HTTPManager {
	return &HTTPManager{
		Config: cfg,
		Logger: log,
		Client: &http.Client{
			Timeout: time.Duration(cfg.Network.RequestTimeout) * time.Second,
		},
	}
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries and exponential backoff.
// A 429 returns ErrRateLimited immediately: retrying would burn more of
// the provider's minute window on a request it already refused.
func (nm *HTTPManager) Get(urlStr string, params map[string]string) ([]byte, error) {
	reqUrl, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqUrl.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	reqUrl.RawQuery = q.Encode()

	finalUrl := reqUrl.String()

	maxRetries := nm.Config.Network.MaxRetries
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(i*i) * time.Second) // Exponential backoff
		}

		req, err := http.NewRequest("GET", finalUrl, nil)
		if err != nil {
			return nil, err
		}

		if ua := nm.Config.Network.UserAgent; ua != "" {
			req.Header.Set("User-Agent", ua)
		}

		resp, err := nm.Client.Do(req)
		if err != nil {
			lastErr = err
			nm.Logger.Info("Request failed (attempt %d/%d): %v", i+1, maxRetries+1, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%s: %w", reqUrl.Host, ErrRateLimited)
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("bad status: %d", resp.StatusCode)
			nm.Logger.Info("Bad status %d from %s", resp.StatusCode, reqUrl.Host)
			continue
		}

		if readErr != nil {
			lastErr = readErr
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

package interfaces

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for outbound HTTP requests with
// bounded timeouts and retry logic.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// Get performs a GET request to the specified URL with query parameters.
	// Returns the response body as bytes or an error. An HTTP 429 surfaces
	// as network.ErrRateLimited without further retries.
	Get(url string, params map[string]string) ([]byte, error)
}

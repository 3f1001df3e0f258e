package llm

import (
	"net/http"
	"time"
)

// NewHTTPClient returns the pooled HTTP client shared by the raw-HTTP provider
// implementations. Long documents mean hundreds of sequential requests to the
// same host, so connection reuse matters: the transport keeps at least five
// idle connections per host and ten in total.
//
// A zero or negative timeout disables the per-request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
	c := &http.Client{Transport: transport}
	if timeout > 0 {
		c.Timeout = timeout
	}
	return c
}

// Package catalog provides a read-only client for the remote asset store.
//
// Exists is a metadata probe that reports false for both "asset absent"
// and "probe failed". The upstream store behaves the same way and the
// version resolver is written to degrade to conservative defaults. A
// transient store error can therefore make a probe read as absent; this
// ambiguity is inherited deliberately rather than papered over.
package catalog

import (
	"fmt"
	"time"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 10
)

// UnavailableError reports a transient failure talking to the asset
// store. Callers treat it as "zero entries known", not a hard stop.
type UnavailableError struct {
	Op   string
	Path string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("asset catalog unavailable: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// APIError represents a non-OK response from the asset store.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("asset store error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

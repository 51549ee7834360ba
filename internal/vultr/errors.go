package vultr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for errors.Is checks.
var (
	ErrTransport   = errors.New("transport failure")
	ErrAPI         = errors.New("api failure")
	ErrRateLimited = errors.New("rate limited")
)

// TransportError is a network-level failure (including timeouts).
// The request may or may not have reached the server.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failure while calling the Vultr API v2 with %s for %q: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports ErrTransport so callers need not know the concrete type.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// APIError is returned for any status other than 200, 201, 204 and 404
// once the retry loop has finished.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	Attempts   int
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("failure while calling the Vultr API v2 with %s for %q: status %d %s",
		e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if len(e.Body) > 0 {
		msg += ": " + string(e.Body)
	}
	return msg
}

// Is matches ErrAPI always and ErrRateLimited when retries ran out on 429.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAPI:
		return true
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsAPIError checks if an error is an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

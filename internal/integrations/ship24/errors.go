package ship24

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoTrackingData: the number is known but the provider has no events yet.
var ErrNoTrackingData = errors.New("No tracking data available")

// Defaults used when a 429 response carries no rate limit headers.
const (
	DefaultRateLimitReset     = 60
	DefaultRateLimitRemaining = 0
	DefaultRateLimitLimit     = 10
)

type RateLimitedError struct {
	Reset     int
	Remaining int
	Limit     int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("Rate limited: retry in %ds (%d/%d requests remaining)", e.Reset, e.Remaining, e.Limit)
}

type InvalidTrackingNumberError struct {
	Number string
	Code   string
}

func (e *InvalidTrackingNumberError) Error() string {
	return "Invalid tracking number"
}

// NetworkError wraps transport failures (dial, TLS, reading the body).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("Network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("Server error: %d", e.StatusCode)
}

// APIErrorResponse is any other provider-reported failure. Message is the provider
// message, its code, or a generic status description.
type APIErrorResponse struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIErrorResponse) Error() string {
	return e.Message
}

// ParseError: a success body that could not be decoded.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

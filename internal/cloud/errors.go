package cloud

import (
	"errors"
	"fmt"
)

// Sentinel errors for Glue Home API calls.
//
//	if errors.Is(err, cloud.ErrInvalidAuth) {
//	    // credential rejected, do not retry
//	}
var (
	// ErrInvalidAuth indicates the API answered 401 or 403.
	ErrInvalidAuth = errors.New("gluehome: invalid authentication")

	// ErrMalformedResponse indicates a 2xx response whose body could not be decoded.
	ErrMalformedResponse = errors.New("gluehome: malformed response")
)

// NetworkError indicates the request never produced an HTTP response:
// DNS failure, refused connection, TLS failure, timeout or cancellation.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gluehome: network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError indicates a 5xx response.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("gluehome: server error: status %d", e.StatusCode)
}

// NonSuccessfulResponseError indicates any other non-2xx response
// (400, 404, 409, 422, ...).
type NonSuccessfulResponseError struct {
	StatusCode int
	Body       string
}

func (e *NonSuccessfulResponseError) Error() string {
	return fmt.Sprintf("gluehome: unexpected response: status %d", e.StatusCode)
}

// IsNetworkError reports whether err is (or wraps) a *NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsServerError reports whether err is (or wraps) a *ServerError.
func IsServerError(err error) bool {
	var srvErr *ServerError
	return errors.As(err, &srvErr)
}

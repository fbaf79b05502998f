package walletapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Error values returned by the client.
var (
	ErrInvalidClientConfig = errors.New("invalid client config")
	ErrMalformedResponse   = errors.New("malformed response")
)

// HTTPError reports a non-2xx response. A 401 is the expected
// "not authenticated" signal and callers must treat it as recoverable.
type HTTPError struct {
	Status  int
	Message string
}

// Error returns the formatted error message.
func (httpError *HTTPError) Error() string {
	if httpError.Message == "" {
		return fmt.Sprintf("request failed with status %d", httpError.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", httpError.Status, httpError.Message)
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var httpError *HTTPError
	if !errors.As(err, &httpError) {
		return false
	}
	return httpError.Status == status
}

// IsUnauthorized reports whether err is a 401 HTTPError.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

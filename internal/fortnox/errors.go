package fortnox

import (
	"errors"
	"fmt"
	"net/http"
)

// Common ledger client errors
var (
	// ErrMissingAccessToken is returned when no API access token is configured.
	ErrMissingAccessToken = errors.New("missing Fortnox access token: set FORTNOX_ACCESS_TOKEN")

	// ErrCircuitOpen is returned while the circuit breaker rejects calls after
	// repeated server-side failures.
	ErrCircuitOpen = errors.New("Fortnox API temporarily unavailable (circuit open)")

	// ErrUnexpectedResponse is returned for 5xx responses and undecodable bodies.
	ErrUnexpectedResponse = errors.New("unexpected response from Fortnox API")
)

// ClientError is a 4xx rejection by the Fortnox API.
type ClientError struct {
	// Op is the client operation that failed (e.g., "GetVouchers").
	Op string

	// Status is the HTTP status code.
	Status int

	// Code is the Fortnox error code from the ErrorInformation body, if any.
	Code int

	// Message is the Fortnox error message, if any.
	Message string
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("fortnox: %s failed: HTTP %d (code %d): %s", e.Op, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("fortnox: %s failed: HTTP %d: %s", e.Op, e.Status, e.Message)
}

// StatusCode returns the HTTP status of the rejection.
func (e *ClientError) StatusCode() int {
	return e.Status
}

// IsAuthorization reports whether the credentials were rejected or lack scope.
func (e *ClientError) IsAuthorization() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// errorInformation is the error body returned by the API. Field matching is
// case-insensitive, which covers both spellings the API uses.
type errorInformation struct {
	ErrorInformation struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"ErrorInformation"`
}

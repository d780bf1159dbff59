package google

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthenticationError represents an authentication-related failure surfaced
// to the host application.
type AuthenticationError struct {
	// Type is the machine-readable kind of authentication error.
	Type string `json:"type"`
	// Message is the human-readable message delivered to the host. For the
	// state and pending-request checks the exact wording is part of the host
	// contract.
	Message string `json:"message"`
	// Code is the HTTP status code associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error returns a string representation of the authentication error.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Common authentication error values.
var (
	// ErrPortInUse is returned synchronously by StartFlow when the callback
	// port cannot be bound. No flow worker is spawned in that case.
	ErrPortInUse = &AuthenticationError{
		Type:    "port_in_use",
		Message: "Failed to bind OAuth callback port",
		Code:    http.StatusInternalServerError,
	}

	// ErrStateMismatch reports a callback whose state parameter does not
	// match the stored anti-CSRF state.
	ErrStateMismatch = &AuthenticationError{
		Type:    "state_mismatch",
		Message: "State mismatch",
		Code:    http.StatusBadRequest,
	}

	// ErrNoPendingRequest reports a callback that arrived with no flow in
	// flight.
	ErrNoPendingRequest = &AuthenticationError{
		Type:    "no_pending_request",
		Message: "No pending OAuth request",
		Code:    http.StatusBadRequest,
	}

	// ErrCallbackTimeout reports a flow abandoned before the browser
	// returned to the loopback listener.
	ErrCallbackTimeout = &AuthenticationError{
		Type:    "callback_timeout",
		Message: "Timeout waiting for OAuth callback",
		Code:    http.StatusRequestTimeout,
	}
)

// NewAuthenticationError derives a new authentication error from a base
// error, attaching the underlying cause.
func NewAuthenticationError(baseErr *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    baseErr.Type,
		Message: baseErr.Message,
		Code:    baseErr.Code,
		Cause:   cause,
	}
}

// IsAuthenticationError checks if an error is an authentication error.
func IsAuthenticationError(err error) bool {
	var authenticationError *AuthenticationError
	return errors.As(err, &authenticationError)
}

// ExchangeError reports a non-2xx reply from the token endpoint. Only the
// HTTP status reaches the caller; the response body is logged locally and
// never surfaced.
type ExchangeError struct {
	// Op is the failed operation, "token exchange" or "token refresh".
	Op string
	// StatusCode is the HTTP status returned by the token endpoint.
	StatusCode int
}

// Error returns a string representation of the exchange error.
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s failed with status %d", e.Op, e.StatusCode)
}

// IsExchangeError checks if an error is a token endpoint status error.
func IsExchangeError(err error) bool {
	var exchangeError *ExchangeError
	return errors.As(err, &exchangeError)
}

// DecodeError reports a 2xx token endpoint reply whose body was not valid
// token JSON. It is distinct from ExchangeError so callers can tell a
// provider rejection from a malformed success.
type DecodeError struct {
	// Op is the failed operation, "token exchange" or "token refresh".
	Op string
	// Cause is the underlying JSON error.
	Cause error
}

// Error returns a string representation of the decode error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s returned malformed token response: %v", e.Op, e.Cause)
}

// Unwrap exposes the underlying JSON error.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

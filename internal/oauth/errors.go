package oauth

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode is an OAuth 2.0 error code as reported by the provider.
type ErrorCode string

const (
	ErrInvalidRequest          ErrorCode = "invalid_request"
	ErrUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrAccessDenied            ErrorCode = "access_denied"
	ErrUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrInvalidScope            ErrorCode = "invalid_scope"
	ErrServerError             ErrorCode = "server_error"
	ErrInvalidGrant            ErrorCode = "invalid_grant"
	ErrInvalidClient           ErrorCode = "invalid_client"
	ErrUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrInvalidTarget           ErrorCode = "invalid_target"
)

// ConfigurationError reports a missing or invalid setup value. It is fatal
// and surfaced at startup.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

func newConfigError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// ProviderRequestError is returned when a provider call did not produce a
// successful HTTP status. Status is zero when no response was received at all
// (network failure or timeout); Err then holds the transport error.
type ProviderRequestError struct {
	Operation string
	Status    int
	RequestID string // empty when the provider sent no tracing header
	Body      string
	Err       error
}

func (e *ProviderRequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: provider request failed: %v", e.Operation, e.Err)
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %d (RequestID %s): %s", e.Operation, e.Status, e.RequestID, e.Body)
	}
	return fmt.Sprintf("%s: %d: %s", e.Operation, e.Status, e.Body)
}

func (e *ProviderRequestError) Unwrap() error {
	return e.Err
}

// ProviderTokenError is a payload-level error reported inside an otherwise
// successful token endpoint response.
type ProviderTokenError struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
}

func (e *ProviderTokenError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return string(e.Code)
}

// MissingTokenError is a precondition failure: a required code or token was
// empty. It is raised before any network call.
type MissingTokenError struct {
	Token string
}

func (e *MissingTokenError) Error() string {
	return e.Token + " is missing"
}

// MalformedResponseError reports a provider response that could not be
// mapped: undecodable payloads, absent fields, failed ID token checks.
type MalformedResponseError struct {
	Operation string
	Field     string
	Err       error
}

func (e *MalformedResponseError) Error() string {
	msg := e.Operation + ": malformed response"
	if e.Field != "" {
		msg += ": missing or invalid " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// ExpiredError is returned when session state is read at or after its expiry.
type ExpiredError struct {
	ExpiredAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("session expired at %s", e.ExpiredAt.UTC().Format(time.RFC3339))
}

// IsExpired reports whether err is, or wraps, an ExpiredError.
func IsExpired(err error) bool {
	var expired *ExpiredError
	return errors.As(err, &expired)
}

// IsAuthFailure reports whether err belongs to the login failure family that
// the UI renders as a generic "authentication failed".
func IsAuthFailure(err error) bool {
	var (
		reqErr       *ProviderRequestError
		tokenErr     *ProviderTokenError
		missingErr   *MissingTokenError
		malformedErr *MalformedResponseError
	)
	return errors.As(err, &reqErr) ||
		errors.As(err, &tokenErr) ||
		errors.As(err, &missingErr) ||
		errors.As(err, &malformedErr)
}

package errors

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the bridge. Authorization and lifecycle errors are
// terminal for an invocation; probe errors are recorded per endpoint.
var (
	// Authorization flow errors
	ErrStateMismatch           = errors.New("state mismatch")
	ErrSessionExpired          = errors.New("authorization session expired")
	ErrTokenExchangeFailed     = errors.New("token exchange failed")
	ErrNotRefreshable          = errors.New("token is not refreshable")
	ErrReauthorizationRequired = errors.New("reauthorization required")

	// Lifecycle errors
	ErrNoCredentials      = errors.New("no credentials")
	ErrCredentialsExpired = errors.New("credentials expired")

	// Probe errors
	ErrUnreachable = errors.New("endpoint unreachable")

	// Input errors
	ErrConfiguration = errors.New("configuration error")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// TokenExchangeFailedError carries the provider's answer to a failed token
// endpoint call. HTTPStatus is zero when the request never got a response.
type TokenExchangeFailedError struct {
	HTTPStatus int
	Body       string
	Cause      error
}

func (e *TokenExchangeFailedError) Error() string {
	if e.HTTPStatus == 0 {
		return fmt.Sprintf("token exchange failed: %v", e.Cause)
	}
	return fmt.Sprintf("token exchange failed: status %d: %s", e.HTTPStatus, e.Body)
}

func (e *TokenExchangeFailedError) Is(target error) bool {
	return target == ErrTokenExchangeFailed
}

func (e *TokenExchangeFailedError) Unwrap() error {
	return e.Cause
}

// ConfigurationError reports a malformed input field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Kind maps an error to the stable name used in plugin results.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStateMismatch):
		return "StateMismatch"
	case errors.Is(err, ErrSessionExpired):
		return "SessionExpired"
	case errors.Is(err, ErrReauthorizationRequired):
		return "ReauthorizationRequired"
	case errors.Is(err, ErrTokenExchangeFailed):
		return "TokenExchangeFailed"
	case errors.Is(err, ErrNotRefreshable):
		return "NotRefreshable"
	case errors.Is(err, ErrNoCredentials):
		return "NoCredentials"
	case errors.Is(err, ErrCredentialsExpired):
		return "CredentialsExpired"
	case errors.Is(err, ErrUnreachable):
		return "Unreachable"
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	}
	return "InternalError"
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

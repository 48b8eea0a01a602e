package oauth2

import (
	"strings"
	"time"
)

// DefaultExpiresIn is assumed when the provider leaves expires_in out.
const DefaultExpiresIn = 3600

// TokenResponse is the provider's token endpoint answer (RFC 6749 5.1).
type TokenResponse struct {
	// AccessToken is the bearer credential for API calls.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// RefreshToken is only present when the provider issues or rotates one.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is "Bearer" for this provider.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds.
	// Example: 3600
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// Scope is the space separated list of granted scopes. It may be narrower
	// than what was requested.
	Scope string `json:"scope,omitempty"`
}

// Lifetime returns ExpiresIn as a duration, falling back to DefaultExpiresIn.
func (tr TokenResponse) Lifetime() time.Duration {
	if tr.ExpiresIn <= 0 {
		return DefaultExpiresIn * time.Second
	}
	return time.Duration(tr.ExpiresIn) * time.Second
}

// Scopes splits Scope, or returns requested when the provider did not echo any.
func (tr TokenResponse) Scopes(requested []string) []string {
	if granted := strings.Fields(tr.Scope); len(granted) > 0 {
		return granted
	}
	return requested
}

// ErrorResponse is the token endpoint's error body (RFC 6749 5.2).
type ErrorResponse struct {
	Error            ErrorCode `json:"error"`
	ErrorDescription string    `json:"error_description,omitempty"`
}

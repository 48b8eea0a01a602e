package plugin

import (
	"strings"

	"github.com/jrsteele09/go-workflow-bridge/auth"
	bridgeerrors "github.com/jrsteele09/go-workflow-bridge/internal/errors"
)

const personalTokenPrefix = "pat_"

// ValidatePersonalToken checks the provider's personal token format.
func ValidatePersonalToken(tok string) error {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return bridgeerrors.NewConfigurationError("access_token", "is required")
	}
	if !strings.HasPrefix(tok, personalTokenPrefix) {
		return bridgeerrors.NewConfigurationError("access_token", "must start with "+personalTokenPrefix)
	}
	if len(tok) == len(personalTokenPrefix) {
		return bridgeerrors.NewConfigurationError("access_token", "is too short")
	}
	return nil
}

// ValidateClient checks the OAuth client settings. An empty secret is allowed
// only when requireSecret is false.
func ValidateClient(clientID, clientSecret, redirectURI string, requireSecret bool) error {
	if strings.TrimSpace(clientID) == "" {
		return bridgeerrors.NewConfigurationError("client_id", "is required")
	}
	if requireSecret && strings.TrimSpace(clientSecret) == "" {
		return bridgeerrors.NewConfigurationError("client_secret", "is required")
	}
	return auth.ValidateURL("redirect_uri", redirectURI)
}

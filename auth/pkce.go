package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const stateLength = 32

// generateRandomString creates a random base64url string from length bytes.
func generateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[generateRandomString]")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// generateVerifier returns a 43 character RFC 7636 code verifier.
func generateVerifier() string {
	return oauth2.GenerateVerifier()
}

// codeChallenge creates a PKCE S256 code challenge from a verifier.
func codeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

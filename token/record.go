package token

import (
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultRefreshSkew is how long before expiry a token stops counting as valid.
const DefaultRefreshSkew = 5 * time.Minute

// Type distinguishes long-lived personal tokens from OAuth token pairs.
type Type string

const (
	TypePersonal Type = "personal"
	TypeOAuth    Type = "oauth"
)

var (
	ErrEmptyAccessToken  = errors.New("access token is empty")
	ErrUnknownTokenType  = errors.New("unknown token type")
	ErrExpiryBeforeIssue = errors.New("expires_at is before issued_at")
	ErrMissingExpiry     = errors.New("oauth token has no expiry")
)

// Record is one credential set. It is persisted as a flat JSON object.
type Record struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Type         Type       `json:"token_type"`
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"` // nil: no known expiry
	Scopes       []string   `json:"scopes"`
	// Version is owned by the store and bumped on every successful save.
	Version int64 `json:"version"`
}

// RefreshResult is what a refresh grant hands back.
type RefreshResult struct {
	AccessToken  string
	ExpiresAt    *time.Time
	RefreshToken string    // empty: provider did not rotate
	IssuedAt     time.Time // zero: keep the original issue time
}

// NewPersonal builds a record from a user supplied personal token. A token
// that happens to be a JWT with an exp claim takes that expiry; anything else
// has none.
func NewPersonal(accessToken string, scopes []string, now time.Time) Record {
	r := Record{
		AccessToken: strings.TrimSpace(accessToken),
		Type:        TypePersonal,
		IssuedAt:    now,
		Scopes:      normalizeScopes(scopes),
	}
	if issuedAt, expiresAt, ok := jwtLifetime(r.AccessToken); ok {
		if !issuedAt.IsZero() && !issuedAt.After(expiresAt) {
			r.IssuedAt = issuedAt
		}
		if expiresAt.Before(r.IssuedAt) {
			expiresAt = r.IssuedAt
		}
		r.ExpiresAt = &expiresAt
	}
	return r
}

// NewOAuth builds a record from a token endpoint answer.
func NewOAuth(accessToken, refreshToken string, scopes []string, issuedAt time.Time, lifetime time.Duration) Record {
	if lifetime < 0 {
		lifetime = 0
	}
	expiresAt := issuedAt.Add(lifetime)
	return Record{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Type:         TypeOAuth,
		IssuedAt:     issuedAt,
		ExpiresAt:    &expiresAt,
		Scopes:       normalizeScopes(scopes),
	}
}

// IsValid reports whether now is earlier than ExpiresAt minus skew. A record
// without expiry is always valid.
func (r Record) IsValid(now time.Time, skew time.Duration) bool {
	if r.ExpiresAt == nil {
		return true
	}
	return now.Before(r.ExpiresAt.Add(-skew))
}

// Refreshable reports whether a refresh grant can be attempted.
func (r Record) Refreshable() bool {
	return r.Type == TypeOAuth && r.RefreshToken != ""
}

// Clone returns a copy that shares no memory with r.
func (r Record) Clone() Record {
	out := r
	out.Scopes = slices.Clone(r.Scopes)
	if r.ExpiresAt != nil {
		expiresAt := *r.ExpiresAt
		out.ExpiresAt = &expiresAt
	}
	return out
}

// ApplyRefreshResult returns an updated copy; r itself is left untouched.
func (r Record) ApplyRefreshResult(res RefreshResult) Record {
	next := r.Clone()
	next.AccessToken = res.AccessToken
	next.ExpiresAt = nil
	if res.ExpiresAt != nil {
		expiresAt := *res.ExpiresAt
		next.ExpiresAt = &expiresAt
	}
	if res.RefreshToken != "" {
		next.RefreshToken = res.RefreshToken
	}
	if !res.IssuedAt.IsZero() {
		next.IssuedAt = res.IssuedAt
	}
	return next
}

// Validate checks the record's invariants.
func (r Record) Validate() error {
	if r.AccessToken == "" {
		return ErrEmptyAccessToken
	}
	switch r.Type {
	case TypePersonal:
	case TypeOAuth:
		if r.ExpiresAt == nil {
			return ErrMissingExpiry
		}
	default:
		return errors.Wrapf(ErrUnknownTokenType, "%q", r.Type)
	}
	if r.ExpiresAt != nil && r.ExpiresAt.Before(r.IssuedAt) {
		return ErrExpiryBeforeIssue
	}
	return nil
}

// MarshalZerologObject logs the record without its secrets.
func (r Record) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(r.Type)).
		Str("access_token", hint(r.AccessToken)).
		Bool("refreshable", r.Refreshable()).
		Time("issued_at", r.IssuedAt).
		Strs("scopes", r.Scopes).
		Int64("version", r.Version)
	if r.ExpiresAt != nil {
		e.Time("expires_at", *r.ExpiresAt)
	}
}

// Redacted returns a copy safe to log or report: secrets are cut to a short hint.
func (r Record) Redacted() Record {
	out := r.Clone()
	out.AccessToken = hint(r.AccessToken)
	if r.RefreshToken != "" {
		out.RefreshToken = hint(r.RefreshToken)
	}
	return out
}

func hint(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***"
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// jwtLifetime reads iat/exp from a JWT without verifying its signature.
func jwtLifetime(raw string) (issuedAt, expiresAt time.Time, ok bool) {
	if strings.Count(raw, ".") != 2 {
		return time.Time{}, time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, time.Time{}, false
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		issuedAt = iat.Time
	}
	return issuedAt, exp.Time, true
}

package config

import (
	"strings"
	"time"
)

type OAuthConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetScopes() []string
	GetAuthURL() string
	GetTokenURL() string
	GetIssuerURL() string
	GetPersonalToken() string
	GetTokenExchangeTimeout() time.Duration
	GetRefreshSkew() time.Duration
}

type OAuth struct {
	ClientID     string `split_words:"true"`
	ClientSecret string `split_words:"true"`
	RedirectURI  string `split_words:"true"`
	// Scopes requested when the caller does not name any.
	Scopes   []string `split_words:"true"`
	AuthURL  string   `split_words:"true"`
	TokenURL string   `split_words:"true"`
	// IssuerURL switches endpoint resolution to OpenID Connect discovery.
	IssuerURL     string `split_words:"true"`
	PersonalToken string `split_words:"true"`

	TokenExchangeTimeout time.Duration `split_words:"true"`
	RefreshSkew          time.Duration `split_words:"true"`
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetClientID() string {
	return strings.TrimSpace(o.ClientID)
}

func (o OAuth) GetClientSecret() string {
	return o.ClientSecret
}

func (o OAuth) GetRedirectURI() string {
	return o.RedirectURI
}

func (o OAuth) GetScopes() []string {
	return o.Scopes
}

func (o OAuth) GetAuthURL() string {
	return o.AuthURL
}

func (o OAuth) GetTokenURL() string {
	return o.TokenURL
}

func (o OAuth) GetIssuerURL() string {
	return o.IssuerURL
}

func (o OAuth) GetPersonalToken() string {
	return strings.TrimSpace(o.PersonalToken)
}

// GetTokenExchangeTimeout bounds every token endpoint call, clamped to 10-30s.
func (o OAuth) GetTokenExchangeTimeout() time.Duration {
	switch {
	case o.TokenExchangeTimeout < 10*time.Second:
		return 10 * time.Second
	case o.TokenExchangeTimeout > 30*time.Second:
		return 30 * time.Second
	}
	return o.TokenExchangeTimeout
}

func (o OAuth) GetRefreshSkew() time.Duration {
	return o.RefreshSkew
}

package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-workflow-bridge/internal/config"
	bridgeerrors "github.com/jrsteele09/go-workflow-bridge/internal/errors"
	"github.com/jrsteele09/go-workflow-bridge/internal/utils"
	oauthwire "github.com/jrsteele09/go-workflow-bridge/oauth2"
	"github.com/jrsteele09/go-workflow-bridge/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	DefaultSessionLifetime = 10 * time.Minute
	DefaultExchangeTimeout = 20 * time.Second

	maxErrorBody = 512
)

// Endpoints are the provider's authorization and token endpoint URLs.
type Endpoints struct {
	AuthURL  string
	TokenURL string
}

// Flow drives the authorization code exchange and refresh grants against one
// provider. It holds no per-attempt state; that lives on Session.
type Flow struct {
	endpoints       Endpoints
	clientID        string
	clientSecret    string
	httpClient      *http.Client
	timeout         time.Duration
	sessionLifetime time.Duration
	nowTime         func() time.Time
	logger          zerolog.Logger
}

// FlowOption defines a function type to modify the Flow instance.
type FlowOption func(*Flow)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) FlowOption {
	return func(f *Flow) {
		f.nowTime = nowFunc
	}
}

func WithHTTPClient(client *http.Client) FlowOption {
	return func(f *Flow) {
		f.httpClient = client
	}
}

// WithClientCredentials sets the credentials used by Refresh.
func WithClientCredentials(clientID, clientSecret string) FlowOption {
	return func(f *Flow) {
		f.clientID = strings.TrimSpace(clientID)
		f.clientSecret = clientSecret
	}
}

func WithTimeout(timeout time.Duration) FlowOption {
	return func(f *Flow) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

func WithSessionLifetime(lifetime time.Duration) FlowOption {
	return func(f *Flow) {
		if lifetime > 0 {
			f.sessionLifetime = lifetime
		}
	}
}

func WithLogger(logger zerolog.Logger) FlowOption {
	return func(f *Flow) {
		f.logger = logger
	}
}

// NewFlow returns a Flow for the given endpoints. Both must be absolute http(s) URLs.
func NewFlow(endpoints Endpoints, options ...FlowOption) (*Flow, error) {
	if err := ValidateURL("auth_url", endpoints.AuthURL); err != nil {
		return nil, err
	}
	if err := ValidateURL("token_url", endpoints.TokenURL); err != nil {
		return nil, err
	}

	f := &Flow{
		endpoints:       endpoints,
		httpClient:      http.DefaultClient,
		timeout:         DefaultExchangeTimeout,
		sessionLifetime: DefaultSessionLifetime,
		nowTime:         time.Now,
		logger:          zerolog.Nop(),
	}
	for _, opt := range options {
		opt(f)
	}
	return f, nil
}

// NewFlowFromConfig builds a Flow from configuration. With an issuer URL set,
// the endpoints come from OpenID Connect discovery instead of the configured URLs.
func NewFlowFromConfig(ctx context.Context, cfg config.Config, options ...FlowOption) (*Flow, error) {
	options = append([]FlowOption{
		WithClientCredentials(cfg.GetClientID(), cfg.GetClientSecret()),
		WithTimeout(cfg.GetTokenExchangeTimeout()),
		WithSessionLifetime(cfg.GetMaxSessionAge()),
	}, options...)

	endpoints := Endpoints{AuthURL: cfg.GetAuthURL(), TokenURL: cfg.GetTokenURL()}
	if issuer := cfg.GetIssuerURL(); issuer != "" {
		// Discovery shares the exchange's HTTP client and time limit.
		settings := &Flow{httpClient: http.DefaultClient, timeout: DefaultExchangeTimeout}
		for _, opt := range options {
			opt(settings)
		}
		discoverCtx, cancel := context.WithTimeout(oidc.ClientContext(ctx, settings.httpClient), settings.timeout)
		defer cancel()

		discovered, err := DiscoverEndpoints(discoverCtx, issuer)
		if err != nil {
			return nil, err
		}
		endpoints = discovered
	}
	return NewFlow(endpoints, options...)
}

// DiscoverEndpoints reads the provider's /.well-known/openid-configuration.
func DiscoverEndpoints(ctx context.Context, issuer string) (Endpoints, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return Endpoints{}, errors.Wrap(err, "[DiscoverEndpoints] failed to create OIDC provider")
	}
	ep := provider.Endpoint()
	return Endpoints{AuthURL: ep.AuthURL, TokenURL: ep.TokenURL}, nil
}

func (f *Flow) Endpoints() Endpoints {
	return f.endpoints
}

func (f *Flow) SessionLifetime() time.Duration {
	return f.sessionLifetime
}

// BeginAuthorization generates a fresh state (and PKCE pair when requested)
// and returns the URL the user has to visit. The session waits in
// StatusAwaitingCallback for CompleteAuthorization.
func (f *Flow) BeginAuthorization(clientID, redirectURI string, scopes []string, usePKCE bool) (string, *Session, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return "", nil, bridgeerrors.NewConfigurationError("client_id", "is required")
	}
	if err := ValidateURL("redirect_uri", redirectURI); err != nil {
		return "", nil, err
	}

	state, err := generateRandomString(stateLength)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Flow.BeginAuthorization] state")
	}

	session := &Session{
		State:       state,
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Scopes:      scopes,
		CreatedAt:   f.nowTime(),
	}

	var opts []oauth2.AuthCodeOption
	if usePKCE {
		session.CodeVerifier = generateVerifier()
		session.CodeChallenge = codeChallenge(session.CodeVerifier)
		opts = append(opts, oauth2.S256ChallengeOption(session.CodeVerifier))
	}

	authURL := f.oauthConfig(clientID, "", redirectURI, scopes).AuthCodeURL(state, opts...)
	session.setStatus(StatusAwaitingCallback)

	f.logger.Info().
		Str("client_id", clientID).
		Bool("pkce", usePKCE).
		Strs("scopes", scopes).
		Msg("authorization started")
	return authURL, session, nil
}

// CompleteAuthorization exchanges code for a token record. The state check
// runs first and is independent of the code. A session past its lifetime is
// never exchanged.
func (f *Flow) CompleteAuthorization(ctx context.Context, session *Session, code, receivedState, clientSecret string) (token.Record, error) {
	if session == nil {
		return token.Record{}, bridgeerrors.NewConfigurationError("session", "is required")
	}
	if subtle.ConstantTimeCompare([]byte(receivedState), []byte(session.State)) != 1 {
		f.logger.Warn().Msg("authorization callback state mismatch")
		return token.Record{}, errors.Wrap(bridgeerrors.ErrStateMismatch, "[Flow.CompleteAuthorization]")
	}
	if session.Expired(f.nowTime(), f.sessionLifetime) {
		session.setStatus(StatusFailed)
		return token.Record{}, errors.Wrapf(bridgeerrors.ErrSessionExpired, "[Flow.CompleteAuthorization] session older than %s", f.sessionLifetime)
	}
	if strings.TrimSpace(code) == "" {
		return token.Record{}, bridgeerrors.NewConfigurationError("code", "is required")
	}
	if !session.transition(StatusAwaitingCallback, StatusExchanging) {
		return token.Record{}, errors.Wrapf(bridgeerrors.ErrSessionExpired, "[Flow.CompleteAuthorization] session is %s", session.Status())
	}

	ctx, cancel := f.requestContext(ctx)
	defer cancel()

	var opts []oauth2.AuthCodeOption
	if session.UsesPKCE() {
		opts = append(opts, oauth2.VerifierOption(session.CodeVerifier))
	}

	issuedAt := f.nowTime()
	conf := f.oauthConfig(session.ClientID, clientSecret, session.RedirectURI, session.Scopes)
	tk, err := conf.Exchange(ctx, code, opts...)
	if err != nil {
		session.setStatus(StatusFailed)
		f.logger.Error().Err(err).Msg("token exchange failed")
		return token.Record{}, exchangeError(err)
	}

	resp := tokenResponse(tk)
	rec := token.NewOAuth(resp.AccessToken, resp.RefreshToken, resp.Scopes(session.Scopes), issuedAt, resp.Lifetime())
	session.setStatus(StatusComplete)

	f.logger.Info().Object("token", rec).Msg("authorization complete")
	return rec, nil
}

// Refresh runs a refresh grant for rec. invalid_grant means the refresh token
// is gone for good and is reported as ErrReauthorizationRequired.
func (f *Flow) Refresh(ctx context.Context, rec token.Record) (token.Record, error) {
	if !rec.Refreshable() {
		return token.Record{}, errors.Wrapf(bridgeerrors.ErrNotRefreshable, "[Flow.Refresh] %s token", rec.Type)
	}

	ctx, cancel := f.requestContext(ctx)
	defer cancel()

	issuedAt := f.nowTime()
	conf := f.oauthConfig(f.clientID, f.clientSecret, "", nil)
	tk, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && oauthwire.ErrorCode(re.ErrorCode) == oauthwire.InvalidGrantError {
			f.logger.Warn().Str("error_description", re.ErrorDescription).Msg("refresh token rejected")
			return token.Record{}, errors.Wrap(bridgeerrors.ErrReauthorizationRequired, "[Flow.Refresh]")
		}
		f.logger.Error().Err(err).Msg("token refresh failed")
		return token.Record{}, exchangeError(err)
	}

	resp := tokenResponse(tk)
	expiresAt := issuedAt.Add(resp.Lifetime())
	result := token.RefreshResult{
		AccessToken: resp.AccessToken,
		ExpiresAt:   &expiresAt,
		IssuedAt:    issuedAt,
	}
	// The token source hands the old refresh token back when the provider did not rotate it.
	if resp.RefreshToken != rec.RefreshToken {
		result.RefreshToken = resp.RefreshToken
	}

	next := rec.ApplyRefreshResult(result)
	f.logger.Info().Bool("rotated", result.RefreshToken != "").Object("token", next).Msg("token refreshed")
	return next, nil
}

func (f *Flow) oauthConfig(clientID, clientSecret, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.endpoints.AuthURL,
			TokenURL:  f.endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (f *Flow) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	return context.WithTimeout(ctx, f.timeout)
}

// tokenResponse maps the library token back onto the provider's wire shape.
func tokenResponse(tk *oauth2.Token) oauthwire.TokenResponse {
	resp := oauthwire.TokenResponse{
		AccessToken:  tk.AccessToken,
		RefreshToken: tk.RefreshToken,
		TokenType:    tk.TokenType,
		ExpiresIn:    tk.ExpiresIn,
	}
	if resp.ExpiresIn == 0 {
		if v, ok := tk.Extra("expires_in").(float64); ok {
			resp.ExpiresIn = int64(v)
		}
	}
	if scope, ok := tk.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp
}

func exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &bridgeerrors.TokenExchangeFailedError{
			HTTPStatus: status,
			Body:       utils.Truncate(string(re.Body), maxErrorBody),
			Cause:      err,
		}
	}
	return &bridgeerrors.TokenExchangeFailedError{Cause: err}
}

// ValidateURL requires an absolute http or https URL.
func ValidateURL(field, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return bridgeerrors.NewConfigurationError(field, "must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return bridgeerrors.NewConfigurationError(field, "must use http or https")
	}
	return nil
}

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-workflow-bridge/auth"
	"github.com/jrsteele09/go-workflow-bridge/auth/sessions"
	"github.com/jrsteele09/go-workflow-bridge/internal/config"
	"github.com/jrsteele09/go-workflow-bridge/internal/metrics"
	"github.com/jrsteele09/go-workflow-bridge/probe"
	"github.com/jrsteele09/go-workflow-bridge/server"
	"github.com/jrsteele09/go-workflow-bridge/token"
	"github.com/jrsteele09/go-workflow-bridge/token/store"
	"github.com/jrsteele09/go-workflow-bridge/token/store/storefake"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv       *server.Server
	sessions  *sessions.InMemoryRepo
	store     *storefake.FakeStore
	provider  *httptest.Server
	exchanges *atomic.Int32
}

func newFixture(t *testing.T, options ...server.Option) *fixture {
	t.Helper()
	fake := storefake.New()
	f := newFixtureWithStore(t, fake, options...)
	f.store = fake
	return f
}

func newFixtureWithStore(t *testing.T, st store.Store, options ...server.Option) *fixture {
	t.Helper()

	exchanges := new(atomic.Int32)
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "abc123" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok1-long-enough","refresh_token":"ref1","expires_in":3600,"token_type":"bearer"}`))
	}))
	t.Cleanup(provider.Close)

	t.Setenv("BRIDGE_CLIENT_ID", "cid")
	t.Setenv("BRIDGE_CLIENT_SECRET", "secret")
	t.Setenv("BRIDGE_AUTH_URL", provider.URL+"/authorize")
	t.Setenv("BRIDGE_TOKEN_URL", provider.URL+"/token")
	t.Setenv("BRIDGE_ENV", "TEST")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	flow, err := auth.NewFlowFromConfig(context.Background(), cfg)
	require.NoError(t, err)

	f := &fixture{
		sessions:  sessions.NewInMemoryRepo(flow.SessionLifetime(), time.Now),
		provider:  provider,
		exchanges: exchanges,
	}
	f.srv, err = server.New(cfg, flow, f.sessions, st, options...)
	require.NoError(t, err)
	return f
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := server.New(config.New(), nil, nil, nil)
	require.Error(t, err)
}

func TestAuthorize_Redirects(t *testing.T) {
	f := newFixture(t)

	rr := f.get(t, server.RouteAuthorize)
	require.Equal(t, http.StatusFound, rr.Code)
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/authorize", location.Path)
	require.Equal(t, "cid", location.Query().Get("client_id"))
	require.Equal(t, "S256", location.Query().Get("code_challenge_method"))

	_, err = f.sessions.Get(location.Query().Get("state"))
	require.NoError(t, err)
}

func TestAuthorizeThenCallback(t *testing.T) {
	f := newFixture(t)

	rr := f.get(t, server.RouteAuthorize+"?format=json")
	require.Equal(t, http.StatusOK, rr.Code)
	state := decode(t, rr)["state"].(string)
	require.NotEmpty(t, state)

	rr = f.get(t, server.RouteCallback+"?code=abc123&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Equal(t, "complete", body["status"])
	assert.NotContains(t, rr.Body.String(), "tok1-long-enough")

	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok1-long-enough", stored.AccessToken)
	require.Equal(t, "ref1", stored.RefreshToken)
	require.Zero(t, f.sessions.Len())

	// A replayed callback finds no session.
	rr = f.get(t, server.RouteCallback+"?code=abc123&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "SessionExpired", decode(t, rr)["error"])
}

func TestCallback_Errors(t *testing.T) {
	f := newFixture(t)

	rr := f.get(t, server.RouteCallback+"?error=access_denied&error_description=user+said+no")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "access_denied", decode(t, rr)["error"])

	rr = f.get(t, server.RouteCallback+"?state=abc")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	state := decode(t, f.get(t, server.RouteAuthorize+"?format=json"))["state"].(string)
	rr = f.get(t, server.RouteCallback+"?code=wrong&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Equal(t, "TokenExchangeFailed", decode(t, rr)["error"])
	require.Zero(t, f.store.Saves())
}

func TestTokenStatus(t *testing.T) {
	f := newFixture(t)

	rr := f.get(t, server.RouteToken)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "NoCredentials", decode(t, rr)["error"])

	_, err := f.store.Save(context.Background(), token.NewPersonal("pat_secret_value", nil, time.Now()))
	require.NoError(t, err)

	rr = f.get(t, server.RouteToken)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	require.Equal(t, true, body["valid"])
	require.NotContains(t, rr.Body.String(), "pat_secret_value")
}

func TestProbe(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer target.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	open := newFixture(t, server.WithProber(probe.NewProber(), []probe.Endpoint{{ID: "chat", URL: target.URL, Fast: true}}))
	rr := open.get(t, server.RouteProbe+"?mode=fast")
	require.Equal(t, http.StatusOK, rr.Code)
	summary := decode(t, rr)["summary"].(map[string]any)
	require.Equal(t, false, summary["blocked"])
	require.Equal(t, 1.0, summary["auth_required_count"])

	blocked := newFixture(t, server.WithProber(probe.NewProber(), []probe.Endpoint{{ID: "gone", URL: closedURL}}))
	rr = blocked.get(t, server.RouteProbe)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = open.get(t, server.RouteProbe+"?mode=sideways")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newFixture(t, server.WithMetrics(metrics.New()))

	rr := f.get(t, server.RouteHealthz)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())

	rr = f.get(t, server.RouteMetrics)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = newFixture(t).get(t, server.RouteMetrics)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	f := newFixture(t)
	h := server.ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}, f.srv.RecoverMiddleware)

	rr := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestChainMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.HandlerFunc) http.HandlerFunc {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next(w, r)
			}
		}
	}
	h := server.ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}, mw("first"), mw("second"))

	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"first", "second", "handler"}, order)
}

// racedStore loses the first save to another writer, or fails every load.
type racedStore struct {
	*storefake.FakeStore
	failLoad bool
	lost     atomic.Bool
}

func (r *racedStore) Load(ctx context.Context) (token.Record, error) {
	if r.failLoad {
		return token.Record{}, errors.New("store offline")
	}
	return r.FakeStore.Load(ctx)
}

func (r *racedStore) Save(ctx context.Context, rec token.Record) (token.Record, error) {
	if r.lost.CompareAndSwap(false, true) {
		// Another writer stores a record between our load and save.
		if _, err := r.FakeStore.Save(ctx, token.NewPersonal("pat_other_writer", nil, time.Now())); err != nil {
			return token.Record{}, err
		}
		return token.Record{}, store.ErrVersionConflict
	}
	return r.FakeStore.Save(ctx, rec)
}

func TestCallback_StoreTrouble(t *testing.T) {
	t.Run("store offline leaves the code unredeemed", func(t *testing.T) {
		f := newFixtureWithStore(t, &racedStore{FakeStore: storefake.New(), failLoad: true})
		state := decode(t, f.get(t, server.RouteAuthorize+"?format=json"))["state"].(string)

		rr := f.get(t, server.RouteCallback+"?code=abc123&state="+url.QueryEscape(state))
		require.Equal(t, http.StatusInternalServerError, rr.Code)
		require.Zero(t, f.exchanges.Load())
	})

	t.Run("authorized record wins a version conflict", func(t *testing.T) {
		raced := &racedStore{FakeStore: storefake.New()}
		f := newFixtureWithStore(t, raced)
		state := decode(t, f.get(t, server.RouteAuthorize+"?format=json"))["state"].(string)

		rr := f.get(t, server.RouteCallback+"?code=abc123&state="+url.QueryEscape(state))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		require.Equal(t, int32(1), f.exchanges.Load())

		stored, err := raced.FakeStore.Load(context.Background())
		require.NoError(t, err)
		require.Equal(t, "tok1-long-enough", stored.AccessToken)
		require.Equal(t, int64(2), stored.Version)
	})
}

func TestConnectivityRoute_EndpointsFile(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer target.Close()

	path := filepath.Join(t.TempDir(), "endpoints.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoints:\n  - {id: custom, url: "+target.URL+", fast: true, expect_auth: true}\n"), 0o600))
	t.Setenv("BRIDGE_PROBE_ENDPOINTS_FILE", path)

	rr := newFixture(t).get(t, server.RouteProbe)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	results := body["results"].([]any)
	require.Len(t, results, 1)
	require.Equal(t, "custom", results[0].(map[string]any)["endpoint_id"])
	require.Equal(t, 1.0, body["summary"].(map[string]any)["auth_required_count"])
}

func TestNew_BadEndpointsFile(t *testing.T) {
	t.Setenv("BRIDGE_PROBE_ENDPOINTS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	flow, err := auth.NewFlowFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	_, err = server.New(cfg, flow, sessions.NewInMemoryRepo(time.Minute, time.Now), storefake.New())
	require.Error(t, err)
}

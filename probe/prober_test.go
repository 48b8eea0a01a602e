package probe_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	bridgeerrors "github.com/jrsteele09/go-workflow-bridge/internal/errors"
	"github.com/jrsteele09/go-workflow-bridge/internal/metrics"
	"github.com/jrsteele09/go-workflow-bridge/probe"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func statusServer(t *testing.T, routes map[string]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, ok := routes[r.URL.Path]
		if !ok {
			status = http.StatusNotFound
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, "body for "+r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		err    error
		want   probe.Classification
	}{
		{0, context.DeadlineExceeded, probe.Unreachable},
		{200, context.DeadlineExceeded, probe.Unreachable},
		{401, nil, probe.AuthRequired},
		{403, nil, probe.AuthRequired},
		{404, nil, probe.NotFound},
		{200, nil, probe.Accessible},
		{204, nil, probe.Accessible},
		{400, nil, probe.Error},
		{500, nil, probe.Error},
		{302, nil, probe.Error},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, probe.Classify(tt.status, tt.err), "status %d err %v", tt.status, tt.err)
	}
}

func TestRun_ProviderNotBlocking(t *testing.T) {
	srv := statusServer(t, map[string]int{"/chat": 200, "/workflow": 401, "/": 200})
	endpoints := []probe.Endpoint{
		{ID: "chat", URL: srv.URL + "/chat"},
		{ID: "workflow", URL: srv.URL + "/workflow"},
		{ID: "root", URL: srv.URL + "/"},
		{ID: "unknown", URL: srv.URL + "/unknown"},
	}

	results := probe.NewProber().Run(context.Background(), endpoints, time.Second)
	require.Len(t, results, 4)
	for i, r := range results {
		require.Equal(t, endpoints[i].ID, r.EndpointID)
		require.NotNil(t, r.HTTPStatus)
		require.NoError(t, r.Err())
	}
	require.Equal(t, probe.Accessible, results[0].Classification)
	require.Equal(t, probe.AuthRequired, results[1].Classification)
	require.Equal(t, probe.Accessible, results[2].Classification)
	require.Equal(t, probe.NotFound, results[3].Classification)

	summary := probe.Summarize(results)
	require.Equal(t, 2, summary.AccessibleCount)
	require.Equal(t, 4, summary.TotalCount)
	require.Zero(t, summary.UnreachableCount)
	require.False(t, summary.Blocked)
	require.Equal(t, "provider is not blocking this network path", summary.VerdictText)
}

func TestRun_AllOkOrAuthRequiredIsNotBlocked(t *testing.T) {
	srv := statusServer(t, map[string]int{"/a": 200, "/b": 401, "/c": 403})
	results := probe.NewProber().Run(context.Background(), []probe.Endpoint{
		{ID: "a", URL: srv.URL + "/a"},
		{ID: "b", URL: srv.URL + "/b"},
		{ID: "c", URL: srv.URL + "/c"},
	}, time.Second)

	summary := probe.Summarize(results)
	require.Less(t, summary.AccessibleCount, summary.TotalCount)
	require.False(t, summary.Blocked)
	require.Contains(t, summary.RecommendationText, "authentication")
}

func TestRun_AllTimeoutsAreBlocked(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	endpoints := []probe.Endpoint{
		{ID: "chat", URL: srv.URL + "/chat"},
		{ID: "workflow", URL: srv.URL + "/workflow"},
		{ID: "root", URL: srv.URL + "/"},
	}
	mt := metrics.New()
	start := time.Now()
	results := probe.NewProber(probe.WithMetrics(mt), probe.WithConcurrency(3)).Run(context.Background(), endpoints, 50*time.Millisecond)
	require.Less(t, time.Since(start), 5*time.Second)

	for _, r := range results {
		require.Equal(t, probe.Unreachable, r.Classification)
		require.Nil(t, r.HTTPStatus)
		require.Equal(t, "timeout", r.Detail)
		require.ErrorIs(t, r.Err(), bridgeerrors.ErrUnreachable)
	}

	summary := probe.Summarize(results)
	require.Zero(t, summary.AccessibleCount)
	require.Equal(t, 3, summary.UnreachableCount)
	require.True(t, summary.Blocked)
	require.Contains(t, summary.RecommendationText, "egress")
	require.Equal(t, 1.0, testutil.ToFloat64(mt.ProbeResultsTotal.WithLabelValues("chat", "unreachable")))
}

func TestRun_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	results := probe.NewProber().Run(context.Background(), []probe.Endpoint{{ID: "closed", URL: "http://" + addr + "/"}}, time.Second)
	require.Equal(t, probe.Unreachable, results[0].Classification)
	require.NotEmpty(t, results[0].Detail)
}

func TestRun_ErrorDetailTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, strings.Repeat("x", 2000))
	}))
	defer srv.Close()

	results := probe.NewProber().Run(context.Background(), []probe.Endpoint{{ID: "broken", URL: srv.URL}}, time.Second)
	r := results[0]
	require.Equal(t, probe.Error, r.Classification)
	require.Equal(t, 500, *r.HTTPStatus)
	require.True(t, strings.HasPrefix(r.Detail, "status 500: xxx"))
	require.LessOrEqual(t, len([]rune(r.Detail)), 256+3)

	summary := probe.Summarize(results)
	require.Equal(t, 1, summary.ErrorCount)
	require.False(t, summary.Blocked)
}

func TestRun_SendsMethodBodyAndBearer(t *testing.T) {
	var gotMethod, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	endpoints := probe.DefaultEndpoints(srv.URL, srv.URL)
	var workflow probe.Endpoint
	for _, e := range endpoints {
		if e.ID == "workflow_chat" {
			workflow = e
		}
	}
	results := probe.NewProber().Run(context.Background(), []probe.Endpoint{workflow}, time.Second)

	require.True(t, workflow.ExpectAuth)
	require.Equal(t, probe.AuthRequired, results[0].Classification)
	require.Equal(t, "Unauthorized (expected)", results[0].Detail)
	require.Equal(t, http.MethodPost, gotMethod)
	require.True(t, strings.HasPrefix(gotAuth, "Bearer pat_"))
	require.Contains(t, gotBody, "workflow_id")
}

func TestRun_ExpectAuth(t *testing.T) {
	var auths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	prober := probe.NewProber(probe.WithConcurrency(1))
	results := prober.Run(context.Background(), []probe.Endpoint{
		{ID: "plain", URL: srv.URL},
		{ID: "expects", URL: srv.URL, ExpectAuth: true},
		{ID: "own token", URL: srv.URL, ExpectAuth: true, BearerToken: "pat_own"},
	}, time.Second)

	require.Equal(t, []string{"", "Bearer pat_test_token_for_connectivity_check", "Bearer pat_own"}, auths)
	require.Equal(t, "Forbidden", results[0].Detail)
	require.Equal(t, "Forbidden (expected)", results[1].Detail)
	for _, r := range results {
		require.Equal(t, probe.AuthRequired, r.Classification)
	}
}

func TestRun_IndependentChecksKeepOrder(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
	}))
	defer srv.Close()

	var endpoints []probe.Endpoint
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		endpoints = append(endpoints, probe.Endpoint{ID: id, URL: srv.URL + "/" + id})
	}
	results := probe.NewProber(probe.WithConcurrency(2)).Run(context.Background(), endpoints, time.Second)

	for i, r := range results {
		require.Equal(t, endpoints[i].ID, r.EndpointID)
		require.Equal(t, probe.Accessible, r.Classification)
	}
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSelectAndDefaults(t *testing.T) {
	endpoints := probe.DefaultEndpoints("https://api.example.com/", "https://www.example.com")
	require.Len(t, endpoints, 5)
	require.Equal(t, "https://api.example.com/v1/chat", endpoints[0].URL)

	fast := probe.Select(endpoints, probe.ModeFast)
	require.Equal(t, []string{"chat", "root"}, []string{fast[0].ID, fast[1].ID})
	require.Len(t, fast, 2)
	require.Len(t, probe.Select(endpoints, probe.ModeFull), 5)

	unmarked := []probe.Endpoint{{ID: "x", URL: "http://x"}}
	require.Equal(t, unmarked, probe.Select(unmarked, probe.ModeFast))
}

func TestParseMode(t *testing.T) {
	m, err := probe.ParseMode("")
	require.NoError(t, err)
	require.Equal(t, probe.ModeFast, m)

	m, err = probe.ParseMode(" FULL ")
	require.NoError(t, err)
	require.Equal(t, probe.ModeFull, m)

	_, err = probe.ParseMode("slow")
	require.ErrorIs(t, err, bridgeerrors.ErrConfiguration)
}

func TestSummarize_Empty(t *testing.T) {
	s := probe.Summarize(nil)
	require.Zero(t, s.TotalCount)
	require.False(t, s.Blocked)
}

func TestLoadEndpointsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoints.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoints:
  - id: chat
    url: https://api.example.com/v1/chat
    fast: true
  - id: run
    url: https://api.example.com/v1/workflow/run
    method: post
    bearer_token: pat_dummy
    expect_auth: true
`), 0o600))

	endpoints, err := probe.LoadEndpointsFile(path)
	require.NoError(t, err)
	require.Len(t, endpoints, 2)
	require.True(t, endpoints[0].Fast)
	require.Equal(t, "GET", endpoints[0].Method)
	require.Equal(t, "POST", endpoints[1].Method)
	require.Equal(t, "pat_dummy", endpoints[1].BearerToken)
	require.True(t, endpoints[1].ExpectAuth)

	configured, err := probe.ConfiguredEndpoints(path, "https://unused", "https://unused")
	require.NoError(t, err)
	require.Equal(t, endpoints, configured)
	builtin, err := probe.ConfiguredEndpoints("", "https://api.example.com", "https://www.example.com")
	require.NoError(t, err)
	require.Len(t, builtin, 5)

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("endpoints:\n  - {id: a, url: http://a}\n  - {id: a, url: http://b}\n"), 0o600))
	_, err = probe.LoadEndpointsFile(dup)
	require.ErrorIs(t, err, bridgeerrors.ErrConfiguration)

	_, err = probe.LoadEndpointsFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

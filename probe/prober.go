package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	bridgeerrors "github.com/jrsteele09/go-workflow-bridge/internal/errors"
	"github.com/jrsteele09/go-workflow-bridge/internal/metrics"
	"github.com/jrsteele09/go-workflow-bridge/internal/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultFastTimeout = 3 * time.Second
	DefaultFullTimeout = 10 * time.Second

	maxDetail = 256
	userAgent = "workflow-bridge/1.0"
)

type Classification string

const (
	Accessible   Classification = "accessible"
	AuthRequired Classification = "auth_required"
	NotFound     Classification = "not_found"
	Unreachable  Classification = "unreachable"
	Error        Classification = "error"
)

// Result is the outcome of one check. HTTPStatus is nil when no response came back.
type Result struct {
	EndpointID     string         `json:"endpoint_id"`
	URL            string         `json:"url"`
	HTTPStatus     *int           `json:"http_status,omitempty"`
	Classification Classification `json:"classification"`
	LatencyMs      float64        `json:"latency_ms"`
	Detail         string         `json:"detail,omitempty"`
}

// Err returns ErrUnreachable for unreachable results and nil otherwise.
func (r Result) Err() error {
	if r.Classification != Unreachable {
		return nil
	}
	return errors.Wrapf(bridgeerrors.ErrUnreachable, "%s: %s", r.EndpointID, r.Detail)
}

// Classify applies the classification rules in priority order.
func Classify(status int, transportErr error) Classification {
	switch {
	case transportErr != nil:
		return Unreachable
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return AuthRequired
	case status == http.StatusNotFound:
		return NotFound
	case status >= 200 && status < 300:
		return Accessible
	}
	return Error
}

// Prober issues independent reachability checks. It never retries.
type Prober struct {
	client      *http.Client
	concurrency int
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

type ProberOption func(*Prober)

func WithHTTPClient(client *http.Client) ProberOption {
	return func(p *Prober) {
		p.client = client
	}
}

func WithConcurrency(n int) ProberOption {
	return func(p *Prober) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) ProberOption {
	return func(p *Prober) {
		p.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) ProberOption {
	return func(p *Prober) {
		p.logger = logger
	}
}

func NewProber(options ...ProberOption) *Prober {
	p := &Prober{
		client:      &http.Client{},
		concurrency: 4,
		logger:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Run checks every endpoint with the given per request timeout and returns
// one result per endpoint in the order given. A failing endpoint never stops
// the others.
func (p *Prober) Run(ctx context.Context, endpoints []Endpoint, timeout time.Duration) []Result {
	results := make([]Result, len(endpoints))

	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for i, ep := range endpoints {
		g.Go(func() error {
			results[i] = p.check(ctx, ep, timeout)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RunMode selects the endpoints for mode and runs them with that mode's timeout.
func (p *Prober) RunMode(ctx context.Context, endpoints []Endpoint, mode Mode, fastTimeout, fullTimeout time.Duration) []Result {
	timeout := fullTimeout
	if mode == ModeFast {
		timeout = fastTimeout
	}
	return p.Run(ctx, Select(endpoints, mode), timeout)
}

func (p *Prober) check(ctx context.Context, ep Endpoint, timeout time.Duration) Result {
	result := Result{EndpointID: ep.ID, URL: ep.URL}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if ep.Body != "" {
		body = strings.NewReader(ep.Body)
	}
	req, err := http.NewRequestWithContext(ctx, ep.method(), ep.URL, body)
	if err != nil {
		result.Classification = Error
		result.Detail = utils.Truncate(err.Error(), maxDetail)
		p.record(result)
		return result
	}
	req.Header.Set("User-Agent", userAgent)
	if ep.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer := ep.bearerToken(); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		result.LatencyMs = millis(time.Since(start))
		result.Classification = Classify(0, err)
		result.Detail = transportDetail(ctx, err)
		p.record(result)
		return result
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4*maxDetail))
	result.LatencyMs = millis(time.Since(start))
	result.HTTPStatus = utils.Ptr(resp.StatusCode)
	result.Classification = Classify(resp.StatusCode, nil)
	switch {
	case result.Classification == Error:
		result.Detail = utils.Truncate(fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), maxDetail)
	case result.Classification == AuthRequired && ep.ExpectAuth:
		result.Detail = http.StatusText(resp.StatusCode) + " (expected)"
	default:
		result.Detail = http.StatusText(resp.StatusCode)
	}
	p.record(result)
	return result
}

func (p *Prober) record(r Result) {
	p.metrics.RecordProbe(r.EndpointID, string(r.Classification), r.LatencyMs/1000)
	event := p.logger.Info()
	if r.Classification == Unreachable || r.Classification == Error {
		event = p.logger.Warn()
	}
	event.Str("endpoint", r.EndpointID).
		Str("classification", string(r.Classification)).
		Float64("latency_ms", r.LatencyMs).
		Int("status", utils.Value(r.HTTPStatus)).
		Msg("probe finished")
}

func transportDetail(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	return utils.Truncate(err.Error(), maxDetail)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

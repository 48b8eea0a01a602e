// Package plugin is the boundary the host runtime calls into. It accepts
// untyped arguments, runs one action and always returns a well formed Result.
package plugin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-workflow-bridge/hostlog"
	"github.com/jrsteele09/go-workflow-bridge/internal/config"
	"github.com/jrsteele09/go-workflow-bridge/internal/metrics"
	"github.com/jrsteele09/go-workflow-bridge/probe"
	"github.com/jrsteele09/go-workflow-bridge/token/store"
	"github.com/rs/zerolog"
)

// Action names accepted in the "action" input key.
const (
	ActionAuthorizationURL      = "authorization_url"
	ActionCompleteAuthorization = "complete_authorization"
	ActionAcquireToken          = "acquire_token"
	ActionRevoke                = "revoke"
	ActionConnectivityTest      = "connectivity_test"
	ActionExecuteWorkflow       = "execute_workflow"

	// actionUnsupported labels metrics for any action name not listed above.
	actionUnsupported = "unsupported"
)

var supportedActions = map[string]bool{
	ActionAuthorizationURL:      true,
	ActionCompleteAuthorization: true,
	ActionAcquireToken:          true,
	ActionRevoke:                true,
	ActionConnectivityTest:      true,
	ActionExecuteWorkflow:       true,
}

// metricAction keeps the metric label set closed whatever the host sends.
func metricAction(action string) string {
	if supportedActions[action] || action == "unknown" {
		return action
	}
	return actionUnsupported
}

// Handler serves plugin invocations. It keeps no credential state between
// calls; every invocation builds its own lifecycle manager.
type Handler struct {
	cfg        config.Config
	store      store.Store
	metrics    *metrics.Metrics
	httpClient *http.Client
	endpoints  []probe.Endpoint
	fallback   hostlog.Fallback
	nowTime    func() time.Time
}

type HandlerOption func(*Handler)

// WithStore makes the handler load the record from s at entry and write it
// back at exit. Without a store the record travels in the input and result.
func WithStore(s store.Store) HandlerOption {
	return func(h *Handler) {
		h.store = s
	}
}

func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithHTTPClient(client *http.Client) HandlerOption {
	return func(h *Handler) {
		h.httpClient = client
	}
}

// WithEndpoints replaces the probe endpoint list.
func WithEndpoints(endpoints []probe.Endpoint) HandlerOption {
	return func(h *Handler) {
		h.endpoints = endpoints
	}
}

func WithFallback(fallback hostlog.Fallback) HandlerOption {
	return func(h *Handler) {
		h.fallback = fallback
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.nowTime = nowFunc
	}
}

// NewHandler returns a Handler. The probe endpoint list comes from the
// configured YAML file when set, else from the built-in list.
func NewHandler(cfg config.Config, options ...HandlerOption) (*Handler, error) {
	h := &Handler{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		fallback:   hostlog.DefaultFallback,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(h)
	}
	if h.endpoints == nil {
		endpoints, err := probe.ConfiguredEndpoints(cfg.GetProbeEndpointsFile(), cfg.GetBaseURL(), cfg.GetSiteURL())
		if err != nil {
			return nil, err
		}
		h.endpoints = endpoints
	}
	return h, nil
}

// Handle runs one invocation. args is whatever the host passed; it is
// expected to expose an "input" mapping and optionally a "logger".
// Handle never panics.
func (h *Handler) Handle(ctx context.Context, args any) (result Result) {
	invocationID := uuid.NewString()
	action := "unknown"

	hostLogger := hostlog.New(extractLogger(args),
		hostlog.WithFallback(h.fallback),
		hostlog.WithFallbackHook(h.metrics.RecordFallbackLog),
	)
	logger := hostlog.NewZerolog(hostLogger, logLevel(h.cfg.GetLogLevel())).
		With().Str("invocation_id", invocationID).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("invocation panicked")
			result = failure(h.nowTime(), fmt.Errorf("internal error: %v", r), nil)
		}
		result.InvocationID = invocationID
		result.Action = action
		outcome := "success"
		if !result.Success {
			outcome = "failure"
		}
		h.metrics.RecordInvocation(metricAction(action), outcome)
	}()

	in, err := extractInput(args)
	if err != nil {
		logger.Error().Err(err).Msg("invalid invocation arguments")
		return failure(h.nowTime(), err, nil)
	}
	action = chooseAction(in)
	logger = logger.With().Str("action", action).Logger()
	logger.Info().Msg("invocation started")

	inv := &invocation{h: h, in: in, logger: logger}
	switch action {
	case ActionAuthorizationURL:
		result = inv.authorizationURL(ctx)
	case ActionCompleteAuthorization:
		result = inv.completeAuthorization(ctx)
	case ActionAcquireToken:
		result = inv.acquireToken(ctx)
	case ActionRevoke:
		result = inv.revoke(ctx)
	case ActionConnectivityTest:
		result = inv.connectivityTest(ctx)
	case ActionExecuteWorkflow:
		result = inv.executeWorkflow(ctx)
	default:
		result = failure(h.nowTime(), configErr("action", "is not supported: "+action), nil)
	}

	if result.Success {
		logger.Info().Msg(result.Message)
	} else {
		logger.Warn().Str("error_kind", result.ErrorKind).Msg(result.Message)
	}
	return result
}

// chooseAction honours an explicit action and otherwise infers one from the
// shape of the input.
func chooseAction(in input) string {
	if a := in.str("action"); a != "" {
		return a
	}
	switch {
	case in.has("authorization_code") || in.has("code"):
		return ActionCompleteAuthorization
	case in.has("workflow_id"):
		return ActionExecuteWorkflow
	case in.has("mode") || in.has("test_type"):
		return ActionConnectivityTest
	case in.has("client_id") && !in.has("access_token") && in["token_record"] == nil:
		return ActionAuthorizationURL
	}
	return ActionAcquireToken
}

func logLevel(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(raw)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

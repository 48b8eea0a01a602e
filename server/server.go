// Package server exposes the authorization flow over HTTP so a browser can
// complete it, plus token status, connectivity probes and metrics.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-workflow-bridge/auth"
	"github.com/jrsteele09/go-workflow-bridge/auth/sessions"
	"github.com/jrsteele09/go-workflow-bridge/internal/config"
	"github.com/jrsteele09/go-workflow-bridge/internal/metrics"
	"github.com/jrsteele09/go-workflow-bridge/lifecycle"
	"github.com/jrsteele09/go-workflow-bridge/probe"
	"github.com/jrsteele09/go-workflow-bridge/token/store"
	"github.com/rs/zerolog"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	flow      *auth.Flow
	sessions  sessions.Repo
	store     store.Store
	prober    *probe.Prober
	endpoints []probe.Endpoint
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	nowTime   func() time.Time
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithProber replaces the prober and its endpoint list.
func WithProber(prober *probe.Prober, endpoints []probe.Endpoint) Option {
	return func(s *Server) {
		s.prober = prober
		s.endpoints = endpoints
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// New wires the routes. flow must be configured with the client credentials;
// tokens obtained through the callback are persisted in st.
func New(cfg config.Config, flow *auth.Flow, sessionRepo sessions.Repo, st store.Store, options ...Option) (*Server, error) {
	if flow == nil || sessionRepo == nil || st == nil {
		return nil, fmt.Errorf("[Server New] flow, session repo and store are required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		flow:     flow,
		sessions: sessionRepo,
		store:    st,
		logger:   zerolog.Nop(),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.prober == nil {
		s.prober = probe.NewProber(
			probe.WithConcurrency(cfg.GetProbeConcurrency()),
			probe.WithMetrics(s.metrics),
			probe.WithLogger(s.logger),
		)
		endpoints, err := probe.ConfiguredEndpoints(cfg.GetProbeEndpointsFile(), cfg.GetBaseURL(), cfg.GetSiteURL())
		if err != nil {
			return nil, err
		}
		s.endpoints = endpoints
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// manager builds a lifecycle manager over the server's store for one request.
func (s *Server) manager(logger zerolog.Logger) *lifecycle.Manager {
	return lifecycle.NewManager(s.flow,
		lifecycle.WithStore(s.store),
		lifecycle.WithSkew(s.config.GetRefreshSkew()),
		lifecycle.WithMetrics(s.metrics),
		lifecycle.WithLogger(logger),
		lifecycle.WithNowFunc(s.nowTime),
	)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	s.logger.Info().Msgf("[%-19s] %s", displayMethod, path)
}

package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	// OAuth authorization code flow
	s.RegisterRouteHandler("GET "+RouteAuthorize, ChainMiddleware(s.AuthorizeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...)) // For form_post response mode

	s.RegisterRouteHandler("GET "+RouteToken, ChainMiddleware(s.TokenStatusHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteProbe, ChainMiddleware(s.ProbeHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteMetrics, ChainMiddleware(s.metricsHandler(), s.RecoverMiddleware))
	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())
}

func (s *Server) metricsHandler() http.HandlerFunc {
	if s.metrics == nil {
		return func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics are disabled", http.StatusNotFound)
		}
	}
	return s.metrics.Handler().ServeHTTP
}

func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}
}

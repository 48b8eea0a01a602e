package server

// Route path constants
const (
	// OAuth authorization code flow
	RouteAuthorize = "/authorize"
	RouteCallback  = "/oauth/callback"

	// Credentials and connectivity
	RouteToken = "/token"
	RouteProbe = "/probe"

	// Operations
	RouteMetrics = "/metrics"
	RouteHealthz = "/healthz"
)

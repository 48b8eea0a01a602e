package probe

import (
	"os"
	"strings"

	bridgeerrors "github.com/jrsteele09/go-workflow-bridge/internal/errors"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Mode picks the endpoint set and timeout of a run.
type Mode string

const (
	ModeFast Mode = "fast"
	ModeFull Mode = "full"
)

// connectivityToken is sent where an endpoint only answers authenticated
// requests; a 401 for it still proves the path is open.
const connectivityToken = "pat_test_token_for_connectivity_check"

// Endpoint is one probe target. Endpoint lists are configuration data.
type Endpoint struct {
	ID          string `yaml:"id" json:"id"`
	URL         string `yaml:"url" json:"url"`
	Method      string `yaml:"method,omitempty" json:"method,omitempty"`
	Body        string `yaml:"body,omitempty" json:"body,omitempty"`
	BearerToken string `yaml:"bearer_token,omitempty" json:"-"`
	// ExpectAuth marks endpoints that only answer authenticated requests. They
	// get the connectivity token unless BearerToken is set, and a 401 or 403
	// from them is the expected answer.
	ExpectAuth bool `yaml:"expect_auth,omitempty" json:"expect_auth,omitempty"`
	// Fast marks endpoints that are part of the fast mode subset.
	Fast bool `yaml:"fast,omitempty" json:"fast,omitempty"`
}

func (e Endpoint) method() string {
	if e.Method == "" {
		return "GET"
	}
	return strings.ToUpper(e.Method)
}

func (e Endpoint) bearerToken() string {
	if e.BearerToken == "" && e.ExpectAuth {
		return connectivityToken
	}
	return e.BearerToken
}

// DefaultEndpoints is the built-in endpoint list for a provider whose API
// lives at apiBase and whose public site lives at siteURL.
func DefaultEndpoints(apiBase, siteURL string) []Endpoint {
	apiBase = strings.TrimRight(apiBase, "/")
	return []Endpoint{
		{ID: "chat", URL: apiBase + "/v1/chat", Fast: true},
		{
			ID:         "workflow_chat",
			URL:        apiBase + "/v1/workflows/chat",
			Method:     "POST",
			ExpectAuth: true,
			Body:       `{"workflow_id":"0","additional_messages":[{"content":"connectivity check","content_type":"text","role":"user","type":"question"}],"parameters":{}}`,
		},
		{ID: "workflow_run", URL: apiBase + "/v1/workflows/run"},
		{ID: "open_api_chat", URL: apiBase + "/open_api/v2/chat"},
		{ID: "root", URL: siteURL, Fast: true},
	}
}

// Select returns the endpoints a mode runs, keeping their order. A list
// without any fast marker runs in full for both modes.
func Select(endpoints []Endpoint, mode Mode) []Endpoint {
	if mode != ModeFast {
		return endpoints
	}
	fast := make([]Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if e.Fast {
			fast = append(fast, e)
		}
	}
	if len(fast) == 0 {
		return endpoints
	}
	return fast
}

// ParseMode maps user input to a Mode; empty means fast.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeFast:
		return ModeFast, nil
	case ModeFull, "all":
		return ModeFull, nil
	}
	return "", bridgeerrors.NewConfigurationError("mode", "must be fast or full")
}

type endpointsFile struct {
	Endpoints []Endpoint `yaml:"endpoints"`
}

// ConfiguredEndpoints loads the endpoint file when one is named and falls back
// to DefaultEndpoints otherwise.
func ConfiguredEndpoints(path, apiBase, siteURL string) ([]Endpoint, error) {
	if path == "" {
		return DefaultEndpoints(apiBase, siteURL), nil
	}
	return LoadEndpointsFile(path)
}

// LoadEndpointsFile reads a YAML list of endpoints:
//
//	endpoints:
//	  - id: chat
//	    url: https://api.example.com/v1/chat
//	    fast: true
func LoadEndpointsFile(path string) ([]Endpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "[LoadEndpointsFile]")
	}
	var f endpointsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "[LoadEndpointsFile] parse %s", path)
	}
	if len(f.Endpoints) == 0 {
		return nil, bridgeerrors.NewConfigurationError("endpoints", "file lists no endpoints")
	}
	seen := make(map[string]bool, len(f.Endpoints))
	for i, e := range f.Endpoints {
		if e.ID == "" || e.URL == "" {
			return nil, bridgeerrors.NewConfigurationError("endpoints", "every endpoint needs an id and a url")
		}
		if seen[e.ID] {
			return nil, bridgeerrors.NewConfigurationError("endpoints", "duplicate id "+e.ID)
		}
		seen[e.ID] = true
		f.Endpoints[i].Method = e.method()
	}
	return f.Endpoints, nil
}

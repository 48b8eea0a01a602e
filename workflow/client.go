package workflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	bridgeerrors "github.com/jrsteele09/go-workflow-bridge/internal/errors"
	"github.com/jrsteele09/go-workflow-bridge/internal/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/time/rate"
)

const (
	runPath        = "/v1/workflow/run"
	defaultTimeout = 60 * time.Second
	maxBody        = 1 << 20
)

// TokenSource hands out a bearer token. *lifecycle.Manager implements it.
type TokenSource interface {
	AcquireValidToken(ctx context.Context) (string, error)
}

// RunRequest is one synchronous workflow run.
type RunRequest struct {
	WorkflowID     string
	UserInput      string
	Parameters     map[string]any
	BotID          string
	AppID          string
	ConversationID string
}

// RunResult is the provider's answer to a successful run. Data is the raw
// output; the provider usually sends it as a JSON encoded string.
type RunResult struct {
	Data      string `json:"data"`
	DebugURL  string `json:"debug_url,omitempty"`
	ExecuteID string `json:"execute_id,omitempty"`
	Usage     string `json:"usage,omitempty"`
}

// APIError is a non-2xx status or a non-zero business code.
type APIError struct {
	Status int
	Code   int64
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("workflow api: status %d code %d: %s", e.Status, e.Code, e.Msg)
}

// Client calls the provider's workflow API. It never retries.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	logger  zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.http = client
	}
}

// WithTimeout bounds a whole Run whatever HTTP client is in use.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRateLimit caps requests per minute; zero or less disables the limit.
func WithRateLimit(perMinute int) ClientOption {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(baseURL string, tokens TokenSource, options ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: defaultTimeout},
		timeout: defaultTimeout,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// ValidateWorkflowID requires the provider's numeric workflow id format.
func ValidateWorkflowID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return bridgeerrors.NewConfigurationError("workflow_id", "is required")
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return bridgeerrors.NewConfigurationError("workflow_id", "must be numeric")
		}
	}
	return nil
}

// BuildPayload renders the JSON body of a run request.
func BuildPayload(req RunRequest) ([]byte, error) {
	payload := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err == nil {
			payload, err = sjson.SetBytes(payload, path, value)
		}
	}

	set("workflow_id", strings.TrimSpace(req.WorkflowID))
	if len(req.Parameters) > 0 {
		set("parameters", req.Parameters)
	} else {
		set("parameters", map[string]any{})
	}
	set("parameters.USER_INPUT", req.UserInput)
	set("parameters.prompt", req.UserInput)
	if req.BotID != "" {
		set("bot_id", req.BotID)
	}
	if req.AppID != "" {
		set("app_id", req.AppID)
	}
	if req.ConversationID != "" {
		set("conversation_id", req.ConversationID)
	}
	set("stream", false)
	if err != nil {
		return nil, errors.Wrap(err, "[BuildPayload]")
	}
	return payload, nil
}

// Run executes a workflow and waits for its output.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if err := ValidateWorkflowID(req.WorkflowID); err != nil {
		return RunResult{}, err
	}
	payload, err := BuildPayload(req)
	if err != nil {
		return RunResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	accessToken, err := c.tokens.AcquireValidToken(ctx)
	if err != nil {
		return RunResult{}, errors.Wrap(err, "[Client.Run] token")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return RunResult{}, errors.Wrap(err, "[Client.Run] rate limit")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+runPath, bytes.NewReader(payload))
	if err != nil {
		return RunResult{}, errors.Wrap(err, "[Client.Run] request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return RunResult{}, errors.Wrap(err, "[Client.Run]")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return RunResult{}, errors.Wrap(err, "[Client.Run] read body")
	}

	c.logger.Info().
		Str("workflow_id", req.WorkflowID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("workflow run finished")

	parsed := gjson.ParseBytes(body)
	code := parsed.Get("code").Int()
	if resp.StatusCode < 200 || resp.StatusCode > 299 || code != 0 {
		msg := parsed.Get("msg").String()
		if msg == "" {
			msg = utils.Truncate(strings.TrimSpace(string(body)), 256)
		}
		return RunResult{}, &APIError{Status: resp.StatusCode, Code: code, Msg: msg}
	}

	return RunResult{
		Data:      parsed.Get("data").String(),
		DebugURL:  parsed.Get("debug_url").String(),
		ExecuteID: parsed.Get("execute_id").String(),
		Usage:     parsed.Get("usage").Raw,
	}, nil
}

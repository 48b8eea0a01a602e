package plugin

import (
	"context"
	"time"

	"github.com/jrsteele09/go-workflow-bridge/auth"
	bridgeerrors "github.com/jrsteele09/go-workflow-bridge/internal/errors"
	"github.com/jrsteele09/go-workflow-bridge/lifecycle"
	"github.com/jrsteele09/go-workflow-bridge/probe"
	"github.com/jrsteele09/go-workflow-bridge/token"
	"github.com/jrsteele09/go-workflow-bridge/workflow"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// invocation carries the per call state of one Handle.
type invocation struct {
	h      *Handler
	in     input
	logger zerolog.Logger
}

func configErr(field, reason string) error {
	return bridgeerrors.NewConfigurationError(field, reason)
}

func (inv *invocation) now() time.Time {
	return inv.h.nowTime()
}

func (inv *invocation) clientID() string {
	if id := inv.in.str("client_id"); id != "" {
		return id
	}
	return inv.h.cfg.GetClientID()
}

func (inv *invocation) clientSecret() string {
	if secret := inv.in.str("client_secret"); secret != "" {
		return secret
	}
	return inv.h.cfg.GetClientSecret()
}

func (inv *invocation) redirectURI() string {
	if uri := inv.in.str("redirect_uri"); uri != "" {
		return uri
	}
	return inv.h.cfg.GetRedirectURI()
}

func (inv *invocation) flow(ctx context.Context) (*auth.Flow, error) {
	return auth.NewFlowFromConfig(ctx, inv.h.cfg,
		auth.WithClientCredentials(inv.clientID(), inv.clientSecret()),
		auth.WithHTTPClient(inv.h.httpClient),
		auth.WithNowTime(inv.h.nowTime),
		auth.WithLogger(inv.logger),
	)
}

// manager builds the lifecycle manager for this invocation from, in order of
// precedence: a personal token in the input, a token record in the input, the
// configured store, or the configured personal token.
func (inv *invocation) manager(ctx context.Context) (*lifecycle.Manager, error) {
	opts := []lifecycle.ManagerOption{
		lifecycle.WithNowFunc(inv.h.nowTime),
		lifecycle.WithSkew(inv.h.cfg.GetRefreshSkew()),
		lifecycle.WithMetrics(inv.h.metrics),
		lifecycle.WithLogger(inv.logger),
	}
	if inv.h.store != nil {
		opts = append(opts, lifecycle.WithStore(inv.h.store))
	}

	rec, err := inv.in.tokenRecord("token_record")
	if err != nil {
		return nil, err
	}
	if rec != nil {
		opts = append(opts, lifecycle.WithRecord(*rec))
	}

	// The flow is only built when a refresh is due, so a valid record never
	// waits on endpoint discovery.
	var refresher lifecycle.Refresher
	if inv.clientID() != "" {
		refresher = auth.NewLazyFlow(inv.flow)
	}

	m := lifecycle.NewManager(refresher, opts...)
	if rec == nil && inv.h.store != nil {
		if err := m.Load(ctx); err != nil {
			return nil, err
		}
	}

	pat := inv.in.str("access_token")
	if _, ok := m.Record(); pat == "" && !ok {
		pat = inv.h.cfg.GetPersonalToken()
	}
	if pat != "" {
		if err := ValidatePersonalToken(pat); err != nil {
			return nil, err
		}
		personal := token.NewPersonal(pat, inv.in.scopes("scopes", nil), inv.now())
		if current, ok := m.Record(); !ok || current.AccessToken != personal.AccessToken {
			if err := m.SetRecord(personal); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// writeBack persists a changed record and reports it in data so a caller
// without a store can keep it. The record is reported even when the store
// refuses it.
func (inv *invocation) writeBack(ctx context.Context, m *lifecycle.Manager, data map[string]any) error {
	if !m.Dirty() {
		return nil
	}
	var err error
	if inv.h.store != nil {
		err = m.Persist(ctx)
	}
	if rec, ok := m.Record(); ok {
		data["token_record"] = rec
	} else {
		data["token_record"] = nil
	}
	return err
}

func (inv *invocation) authorizationURL(ctx context.Context) Result {
	clientID, redirectURI := inv.clientID(), inv.redirectURI()
	if err := ValidateClient(clientID, "", redirectURI, false); err != nil {
		return failure(inv.now(), err, nil)
	}
	flow, err := inv.flow(ctx)
	if err != nil {
		return failure(inv.now(), err, nil)
	}

	usePKCE := inv.in.boolean("use_pkce", inv.h.cfg.GetRequirePKCE())
	scopes := inv.in.scopes("scopes", inv.h.cfg.GetScopes())
	authURL, session, err := flow.BeginAuthorization(clientID, redirectURI, scopes, usePKCE)
	if err != nil {
		return failure(inv.now(), err, nil)
	}

	data := map[string]any{
		"authorization_url":  authURL,
		"state":              session.State,
		"session_created_at": session.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expires_in":         int(flow.SessionLifetime().Seconds()),
		"status":             string(session.Status()),
	}
	if session.UsesPKCE() {
		data["code_verifier"] = session.CodeVerifier
	}
	return success(inv.now(), "open the authorization URL and pass the returned code to complete_authorization", data)
}

// completeAuthorization rebuilds the session from the input since sessions do
// not outlive an invocation. The session may come nested under "session" or
// flat as session_state, code_verifier and session_created_at.
func (inv *invocation) completeAuthorization(ctx context.Context) Result {
	clientID, clientSecret, redirectURI := inv.clientID(), inv.clientSecret(), inv.redirectURI()
	if err := ValidateClient(clientID, clientSecret, redirectURI, true); err != nil {
		return failure(inv.now(), err, nil)
	}

	code := inv.in.str("authorization_code")
	if code == "" {
		code = inv.in.str("code")
	}
	if code == "" {
		return failure(inv.now(), configErr("authorization_code", "is required"), nil)
	}

	nested := inv.in.mapping("session")
	sessionState := firstNonEmpty(nested.str("state"), inv.in.str("session_state"))
	if sessionState == "" {
		return failure(inv.now(), configErr("session_state", "is required"), nil)
	}
	verifier := firstNonEmpty(nested.str("code_verifier"), inv.in.str("code_verifier"))

	createdAt, ok, err := nested.timestamp("created_at")
	if err == nil && !ok {
		createdAt, ok, err = inv.in.timestamp("session_created_at")
	}
	if err != nil {
		return failure(inv.now(), err, nil)
	}
	if !ok {
		createdAt = inv.now()
	}

	flow, err := inv.flow(ctx)
	if err != nil {
		return failure(inv.now(), err, nil)
	}
	// The code is single use, so everything that can fail before the
	// exchange runs first.
	m, err := inv.manager(ctx)
	if err != nil {
		return failure(inv.now(), err, nil)
	}
	scopes := inv.in.scopes("scopes", inv.h.cfg.GetScopes())
	session := auth.RestoreSession(sessionState, clientID, verifier, redirectURI, scopes, createdAt)

	rec, err := flow.CompleteAuthorization(ctx, session, code, inv.in.str("state"), clientSecret)
	if err != nil {
		return failure(inv.now(), err, map[string]any{"status": string(session.Status())})
	}
	if err := m.SetRecord(rec); err != nil {
		return failure(inv.now(), err, nil)
	}

	data := map[string]any{
		"status":     string(session.Status()),
		"token":      rec.Redacted(),
		"expires_at": rec.ExpiresAt,
	}
	if err := inv.writeBack(ctx, m, data); err != nil {
		return failure(inv.now(), err, data)
	}
	return success(inv.now(), "authorization complete", data)
}

func (inv *invocation) acquireToken(ctx context.Context) Result {
	m, err := inv.manager(ctx)
	if err != nil {
		return failure(inv.now(), err, nil)
	}

	data := map[string]any{}
	accessToken, err := m.AcquireValidToken(ctx)
	if err != nil {
		// A cleared record still has to reach the caller's storage.
		if wbErr := inv.writeBack(ctx, m, data); wbErr != nil {
			inv.logger.Warn().Err(wbErr).Msg("write back failed")
		}
		return failure(inv.now(), err, data)
	}

	data["access_token"] = accessToken
	if rec, ok := m.Record(); ok {
		data["token_type"] = string(rec.Type)
		data["expires_at"] = rec.ExpiresAt
	}
	if err := inv.writeBack(ctx, m, data); err != nil {
		return failure(inv.now(), err, data)
	}
	return success(inv.now(), "token is valid", data)
}

func (inv *invocation) revoke(ctx context.Context) Result {
	m, err := inv.manager(ctx)
	if err != nil {
		return failure(inv.now(), err, nil)
	}
	if err := m.Revoke(ctx); err != nil {
		return failure(inv.now(), err, nil)
	}
	return success(inv.now(), "credentials revoked", map[string]any{"token_record": nil})
}

func (inv *invocation) connectivityTest(ctx context.Context) Result {
	mode, err := probe.ParseMode(firstNonEmpty(inv.in.str("mode"), inv.in.str("test_type")))
	if err != nil {
		return failure(inv.now(), err, nil)
	}

	prober := probe.NewProber(
		probe.WithHTTPClient(inv.h.httpClient),
		probe.WithConcurrency(inv.h.cfg.GetProbeConcurrency()),
		probe.WithMetrics(inv.h.metrics),
		probe.WithLogger(inv.logger),
	)
	results := prober.RunMode(ctx, inv.h.endpoints, mode, inv.h.cfg.GetProbeFastTimeout(), inv.h.cfg.GetProbeFullTimeout())
	summary := probe.Summarize(results)

	data := map[string]any{
		"mode":    string(mode),
		"results": results,
		"summary": summary,
	}
	if summary.Blocked {
		return failure(inv.now(), errors.Wrap(bridgeerrors.ErrUnreachable, summary.VerdictText), data)
	}
	return success(inv.now(), summary.VerdictText, data)
}

func (inv *invocation) executeWorkflow(ctx context.Context) Result {
	workflowID := inv.in.str("workflow_id")
	if err := workflow.ValidateWorkflowID(workflowID); err != nil {
		return failure(inv.now(), err, nil)
	}
	userInput := inv.in.str("user_input")
	if userInput == "" {
		return failure(inv.now(), configErr("user_input", "is required"), nil)
	}

	m, err := inv.manager(ctx)
	if err != nil {
		return failure(inv.now(), err, nil)
	}

	client := workflow.NewClient(inv.h.cfg.GetBaseURL(), m,
		workflow.WithHTTPClient(inv.h.httpClient),
		workflow.WithTimeout(inv.h.cfg.GetWorkflowTimeout()),
		workflow.WithRateLimit(inv.h.cfg.GetWorkflowRateLimit()),
		workflow.WithLogger(inv.logger),
	)
	res, runErr := client.Run(ctx, workflow.RunRequest{
		WorkflowID:     workflowID,
		UserInput:      userInput,
		Parameters:     inv.in.mapping("parameters"),
		BotID:          inv.in.str("bot_id"),
		AppID:          inv.in.str("app_id"),
		ConversationID: inv.in.str("conversation_id"),
	})

	data := map[string]any{}
	if err := inv.writeBack(ctx, m, data); err != nil {
		inv.logger.Warn().Err(err).Msg("write back failed")
	}
	if runErr != nil {
		var apiErr *workflow.APIError
		if errors.As(runErr, &apiErr) {
			data["http_status"] = apiErr.Status
			data["code"] = apiErr.Code
		}
		return failure(inv.now(), runErr, data)
	}

	data["workflow_id"] = workflowID
	data["output"] = res.Data
	data["execute_id"] = res.ExecuteID
	if res.DebugURL != "" {
		data["debug_url"] = res.DebugURL
	}
	return success(inv.now(), "workflow executed", data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

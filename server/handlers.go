package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	bridgeerrors "github.com/jrsteele09/go-workflow-bridge/internal/errors"
	"github.com/jrsteele09/go-workflow-bridge/lifecycle"
	"github.com/jrsteele09/go-workflow-bridge/probe"
	"github.com/jrsteele09/go-workflow-bridge/token"
	"github.com/jrsteele09/go-workflow-bridge/token/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind, description string) {
	writeJSON(w, status, errorBody{Error: kind, Description: description})
}

// statusFor maps an error kind to the HTTP status a browser or operator sees.
func statusFor(err error) int {
	switch bridgeerrors.Kind(err) {
	case "StateMismatch", "SessionExpired", "ConfigurationError":
		return http.StatusBadRequest
	case "NoCredentials":
		return http.StatusNotFound
	case "ReauthorizationRequired", "CredentialsExpired", "NotRefreshable":
		return http.StatusUnauthorized
	case "TokenExchangeFailed", "Unreachable":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	status := statusFor(err)
	kind := bridgeerrors.Kind(err)
	logger.Warn().Err(err).Str("error_kind", kind).Int("status", status).Msg("request failed")
	writeError(w, status, kind, err.Error())
}

// AuthorizeHandler starts an authorization and redirects the browser to the
// provider. ?format=json returns the URL instead.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())
		if pruned := s.sessions.DeleteExpired(s.nowTime()); pruned > 0 {
			logger.Debug().Int("pruned", pruned).Msg("expired sessions removed")
		}

		authURL, session, err := s.flow.BeginAuthorization(
			s.config.GetClientID(),
			s.config.GetRedirectURI(),
			s.config.GetScopes(),
			s.config.GetRequirePKCE(),
		)
		if err != nil {
			s.fail(w, logger, err)
			return
		}
		if err := s.sessions.Upsert(session); err != nil {
			s.fail(w, logger, err)
			return
		}

		if r.URL.Query().Get("format") == "json" {
			writeJSON(w, http.StatusOK, map[string]any{
				"authorization_url": authURL,
				"state":             session.State,
				"expires_in":        int(s.flow.SessionLifetime() / time.Second),
			})
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// CallbackHandler completes the authorization the provider redirected back
// with and persists the resulting record.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())

		// r.FormValue works for both query params and POST form data
		state := r.FormValue("state")
		code := r.FormValue("code")
		if errorParam := r.FormValue("error"); errorParam != "" {
			writeError(w, http.StatusBadRequest, errorParam, r.FormValue("error_description"))
			return
		}
		if code == "" || state == "" {
			writeError(w, http.StatusBadRequest, "ConfigurationError", "missing code or state parameter")
			return
		}

		// Take redeems the state, so a replayed callback finds nothing.
		session, err := s.sessions.Take(state)
		if err != nil {
			writeError(w, http.StatusBadRequest, "SessionExpired", "unknown or already used state")
			return
		}

		// The code is single use: the store has to answer before it is redeemed.
		m := s.manager(*logger)
		if err := m.Load(r.Context()); err != nil {
			s.fail(w, logger, err)
			return
		}

		rec, err := s.flow.CompleteAuthorization(r.Context(), session, code, state, s.config.GetClientSecret())
		if err != nil {
			s.fail(w, logger, err)
			return
		}
		if err := s.persistAuthorized(r.Context(), m, rec); err != nil {
			logger.Error().Err(err).Object("token", rec).Msg("authorized token could not be stored")
			s.fail(w, logger, err)
			return
		}

		logger.Info().Object("token", rec).Msg("authorization complete")
		writeJSON(w, http.StatusOK, map[string]any{
			"status": string(session.Status()),
			"token":  rec.Redacted(),
		})
	}
}

// persistAuthorized stores a freshly authorized record. A record another
// writer stored in the meantime is older than this one, so a version conflict
// reloads and writes once more.
func (s *Server) persistAuthorized(ctx context.Context, m *lifecycle.Manager, rec token.Record) error {
	if err := m.SetRecord(rec); err != nil {
		return err
	}
	err := m.Persist(ctx)
	if !errors.Is(err, store.ErrVersionConflict) {
		return err
	}
	if err := m.Load(ctx); err != nil {
		return err
	}
	if err := m.SetRecord(rec); err != nil {
		return err
	}
	return m.Persist(ctx)
}

type tokenStatus struct {
	Valid bool         `json:"valid"`
	Token token.Record `json:"token"`
}

// TokenStatusHandler reports the stored record, refreshing it first when it
// is about to expire. Secrets are never returned.
func (s *Server) TokenStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())
		m := s.manager(*logger)
		if err := m.Load(r.Context()); err != nil {
			s.fail(w, logger, err)
			return
		}
		if _, err := m.AcquireValidToken(r.Context()); err != nil {
			if perr := m.Persist(r.Context()); perr != nil {
				logger.Warn().Err(perr).Msg("persist after failed refresh")
			}
			s.fail(w, logger, err)
			return
		}
		if err := m.Persist(r.Context()); err != nil {
			s.fail(w, logger, err)
			return
		}

		rec, _ := m.Record()
		writeJSON(w, http.StatusOK, tokenStatus{
			Valid: rec.IsValid(s.nowTime(), 0),
			Token: rec.Redacted(),
		})
	}
}

type probeResponse struct {
	Mode    probe.Mode     `json:"mode"`
	Results []probe.Result `json:"results"`
	Summary probe.Summary  `json:"summary"`
}

// ProbeHandler runs a connectivity test. A blocked verdict answers 503 so the
// route can back a readiness check.
func (s *Server) ProbeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())
		mode, err := probe.ParseMode(r.URL.Query().Get("mode"))
		if err != nil {
			s.fail(w, logger, err)
			return
		}

		results := s.prober.RunMode(r.Context(), s.endpoints, mode, s.config.GetProbeFastTimeout(), s.config.GetProbeFullTimeout())
		summary := probe.Summarize(results)

		status := http.StatusOK
		if summary.Blocked {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, probeResponse{Mode: mode, Results: results, Summary: summary})
	}
}

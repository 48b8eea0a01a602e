package plugin

import (
	"time"

	bridgeerrors "github.com/jrsteele09/go-workflow-bridge/internal/errors"
)

// Result is what every invocation returns to the host, failures included.
type Result struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	Error        bool           `json:"error,omitempty"`
	ErrorKind    string         `json:"error_kind,omitempty"`
	Timestamp    string         `json:"timestamp"`
	InvocationID string         `json:"invocation_id"`
	Action       string         `json:"action,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

func success(now time.Time, message string, data map[string]any) Result {
	return Result{
		Success:   true,
		Message:   message,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      data,
	}
}

func failure(now time.Time, err error, data map[string]any) Result {
	var exchangeErr *bridgeerrors.TokenExchangeFailedError
	if bridgeerrors.As(err, &exchangeErr) {
		if data == nil {
			data = map[string]any{}
		}
		data["http_status"] = exchangeErr.HTTPStatus
		data["provider_body"] = exchangeErr.Body
	}
	return Result{
		Success:   false,
		Message:   err.Error(),
		Error:     true,
		ErrorKind: bridgeerrors.Kind(err),
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      data,
	}
}

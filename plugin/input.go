package plugin

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-workflow-bridge/hostlog"
	bridgeerrors "github.com/jrsteele09/go-workflow-bridge/internal/errors"
	"github.com/jrsteele09/go-workflow-bridge/internal/utils"
	"github.com/jrsteele09/go-workflow-bridge/token"
	"github.com/pkg/errors"
)

// input is the host's input mapping with typed accessors. Missing or
// mistyped keys read as zero values.
type input map[string]any

// extractInput pulls the "input" mapping out of the host args. Any map with
// string keys is accepted.
func extractInput(args any) (input, error) {
	raw, ok := hostlog.Attr(args, "input")
	if !ok {
		return nil, bridgeerrors.NewConfigurationError("input", "is missing")
	}
	in, ok := toMap(raw)
	if !ok {
		return nil, bridgeerrors.NewConfigurationError("input", "must be a mapping")
	}
	return in, nil
}

// extractLogger returns the host's logger, or nil when there is none.
func extractLogger(args any) any {
	l, _ := hostlog.Attr(args, "logger")
	return l
}

func toMap(raw any) (map[string]any, bool) {
	if m, ok := raw.(map[string]any); ok {
		return m, true
	}
	v := reflect.ValueOf(raw)
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func (in input) has(key string) bool {
	return in.str(key) != ""
}

func (in input) str(key string) string {
	switch v := in[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (in input) boolean(key string, def bool) bool {
	switch v := in[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func (in input) mapping(key string) input {
	m, ok := toMap(in[key])
	if !ok {
		return input{}
	}
	return m
}

func (in input) scopes(key string, def []string) []string {
	if s := utils.Scopes(in[key]); len(s) > 0 {
		return s
	}
	return def
}

// timestamp accepts RFC 3339 strings and unix seconds.
func (in input) timestamp(key string) (time.Time, bool, error) {
	switch v := in[key].(type) {
	case nil:
		return time.Time{}, false, nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), true, nil
	case int64:
		return time.Unix(v, 0).UTC(), true, nil
	case int:
		return time.Unix(int64(v), 0).UTC(), true, nil
	case time.Time:
		return v, true, nil
	case string:
		if v = strings.TrimSpace(v); v == "" {
			return time.Time{}, false, nil
		}
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC(), true, nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false, bridgeerrors.NewConfigurationError(key, "must be an RFC 3339 timestamp")
		}
		return t, true, nil
	}
	return time.Time{}, false, bridgeerrors.NewConfigurationError(key, "must be a timestamp")
}

// tokenRecord decodes a persisted record handed in by the caller, either as
// a JSON string or as an already decoded mapping.
func (in input) tokenRecord(key string) (*token.Record, error) {
	raw, ok := in[key]
	if !ok || raw == nil {
		return nil, nil
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, bridgeerrors.NewConfigurationError(key, "is not a token record")
		}
		data = b
	}
	var rec token.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, bridgeerrors.NewConfigurationError(key, "is not a token record")
	}
	if err := rec.Validate(); err != nil {
		return nil, errors.Wrap(bridgeerrors.NewConfigurationError(key, err.Error()), "[input.tokenRecord]")
	}
	return &rec, nil
}

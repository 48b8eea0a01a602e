package hostlog_test

import (
	"bytes"
	"testing"

	"github.com/jrsteele09/go-workflow-bridge/hostlog"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Info(msg string) {
	r.lines = append(r.lines, "info:"+msg)
}

func (r *recordingLogger) Error(msg string) {
	r.lines = append(r.lines, "error:"+msg)
}

type panickingLogger struct{}

func (panickingLogger) Info(string) {
	panic("host logger exploded")
}

type fieldLogger struct {
	Info  func(string)
	Debug func(...any)
}

type warnOnlyLogger struct {
	recordingLogger
}

func (w *warnOnlyLogger) Warn(msg string) {
	w.lines = append(w.lines, "warn:"+msg)
}

// counter records how often each path ran.
type counter struct {
	delegated int
	fallback  int
}

func (c *counter) fallbackFn(string, []any) {
	c.fallback++
}

func TestSafeCall_MalformedLoggers(t *testing.T) {
	var nilPtr *recordingLogger

	tests := []struct {
		name   string
		target any
	}{
		{"absent", nil},
		{"typed nil pointer", nilPtr},
		{"missing capability", struct{ Name string }{"x"}},
		{"map without info", map[string]any{"error": func(string) {}}},
		{"map info not callable", map[string]any{"info": "not a function"}},
		{"map info nil func", map[string]any{"info": (func(string))(nil)}},
		{"struct field nil func", fieldLogger{}},
		{"wrong signature", map[string]any{"info": func(a, b int) {}}},
		{"raises on call", panickingLogger{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &counter{}
			var delegated bool
			require.NotPanics(t, func() {
				delegated = hostlog.SafeCall(tt.target, "info", []any{"hello"}, c.fallbackFn)
			})
			require.False(t, delegated)
			require.Equal(t, 1, c.fallback)
		})
	}
}

func TestSafeCall_Delegates(t *testing.T) {
	t.Run("method", func(t *testing.T) {
		host := &recordingLogger{}
		c := &counter{}
		require.True(t, hostlog.SafeCall(host, "info", []any{"hello"}, c.fallbackFn))
		require.Equal(t, []string{"info:hello"}, host.lines)
		require.Zero(t, c.fallback)
	})

	t.Run("map entry", func(t *testing.T) {
		var got string
		host := map[string]any{"info": func(msg string) { got = msg }}
		c := &counter{}
		require.True(t, hostlog.SafeCall(host, "info", []any{"from map"}, c.fallbackFn))
		require.Equal(t, "from map", got)
		require.Zero(t, c.fallback)
	})

	t.Run("variadic struct field", func(t *testing.T) {
		var got []any
		host := fieldLogger{Debug: func(args ...any) { got = args }}
		c := &counter{}
		require.True(t, hostlog.SafeCall(host, "debug", []any{"a", 1}, c.fallbackFn))
		require.Equal(t, []any{"a", 1}, got)
	})

	t.Run("non string argument rendered for string parameter", func(t *testing.T) {
		host := &recordingLogger{}
		require.True(t, hostlog.SafeCall(host, "info", []any{42}, nil))
		require.Equal(t, []string{"info:42"}, host.lines)
	})
}

func TestSafeCall_FallbackPanicIsContained(t *testing.T) {
	require.NotPanics(t, func() {
		hostlog.SafeCall(nil, "info", []any{"x"}, func(string, []any) { panic("stdout closed") })
	})
}

func TestSupports(t *testing.T) {
	require.True(t, hostlog.Supports(&recordingLogger{}, "info"))
	require.False(t, hostlog.Supports(&recordingLogger{}, "debug"))
	require.False(t, hostlog.Supports(nil, "info"))
	require.True(t, hostlog.Supports(map[string]any{"warning": func(string) {}}, "warning"))
}

func TestWriterFallback(t *testing.T) {
	var buf bytes.Buffer
	fallback := hostlog.NewWriterFallback(&buf)

	hostlog.SafeCall(nil, "error", []any{"token exchange failed"}, fallback)
	require.Contains(t, buf.String(), "[ERROR]")
	require.Contains(t, buf.String(), "token exchange failed")
}

package hostlog_test

import (
	"testing"

	"github.com/jrsteele09/go-workflow-bridge/hostlog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLogger_CapabilitiesCheckedIndependently(t *testing.T) {
	host := &recordingLogger{}
	var diverted []string
	l := hostlog.New(host, hostlog.WithFallback(func(method string, args []any) {
		diverted = append(diverted, method)
	}))

	l.Info("one")
	l.Error("two")
	l.Debug("three")
	l.Warning("four")

	require.Equal(t, []string{"info:one", "error:two"}, host.lines)
	require.Equal(t, []string{"debug", "warning"}, diverted)
}

func TestLogger_WarningFallsBackToWarn(t *testing.T) {
	host := &warnOnlyLogger{}
	l := hostlog.New(host)

	l.Warning("careful")
	require.Equal(t, []string{"warn:careful"}, host.lines)
}

func TestLogger_FallbackHook(t *testing.T) {
	hits := 0
	l := hostlog.New(nil,
		hostlog.WithFallback(func(string, []any) {}),
		hostlog.WithFallbackHook(func() { hits++ }),
	)
	require.False(t, l.Usable())

	l.Info("a")
	l.Error("b")
	require.Equal(t, 2, hits)
}

func TestLevelWriter_RoutesZerologEvents(t *testing.T) {
	host := &recordingLogger{}
	l := hostlog.New(host, hostlog.WithFallback(func(string, []any) {}))
	logger := zerolog.New(hostlog.NewLevelWriter(l))

	logger.Info().Str("endpoint", "chat").Int("status", 200).Msg("probe finished")
	logger.Error().Msg("refresh failed")

	require.Equal(t, []string{
		"info:probe finished endpoint=chat status=200",
		"error:refresh failed",
	}, host.lines)
}

func TestLevelWriter_BrokenHostNeverFails(t *testing.T) {
	l := hostlog.New(panickingLogger{}, hostlog.WithFallback(func(string, []any) {}))
	logger := hostlog.NewZerolog(l, zerolog.DebugLevel)

	require.NotPanics(t, func() {
		logger.Info().Msg("still running")
	})
}

func TestRender(t *testing.T) {
	require.Equal(t, "hello k=v", hostlog.Render([]byte(`{"level":"info","time":"2026-01-01T00:00:00Z","message":"hello","k":"v"}`)))
	require.Equal(t, "plain text", hostlog.Render([]byte("plain text\n")))
}

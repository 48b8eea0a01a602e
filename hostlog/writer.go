package hostlog

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// LevelWriter is a zerolog.LevelWriter that hands each event to a host Logger
// as a single "message key=value ..." line.
type LevelWriter struct {
	logger *Logger
}

var _ zerolog.LevelWriter = (*LevelWriter)(nil)

func NewLevelWriter(logger *Logger) *LevelWriter {
	return &LevelWriter{logger: logger}
}

// NewZerolog returns a zerolog.Logger that writes through host at minLevel and above.
func NewZerolog(host *Logger, minLevel zerolog.Level) zerolog.Logger {
	return zerolog.New(NewLevelWriter(host)).Level(minLevel).With().Timestamp().Logger()
}

func (w *LevelWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel never returns an error; delivery problems end in the fallback channel.
func (w *LevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	line := Render(p)
	switch level {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		w.logger.Debug(line)
	case zerolog.WarnLevel:
		w.logger.Warning(line)
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		w.logger.Error(line)
	default:
		w.logger.Info(line)
	}
	return len(p), nil
}

// Render turns a zerolog JSON event into "message key=value ..." with the
// level and timestamp fields dropped. Input that is not JSON is returned trimmed.
func Render(p []byte) string {
	if !gjson.ValidBytes(p) {
		return strings.TrimSpace(string(p))
	}
	event := gjson.ParseBytes(p)

	var b strings.Builder
	b.WriteString(event.Get(zerolog.MessageFieldName).String())
	event.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case zerolog.MessageFieldName, zerolog.LevelFieldName, zerolog.TimestampFieldName:
			return true
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key.String())
		b.WriteByte('=')
		b.WriteString(value.String())
		return true
	})
	return b.String()
}

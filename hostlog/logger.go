package hostlog

// Logger adapts an untrusted host logger to the capability set
// {info, warning, error, debug}. Each capability is checked on every call.
type Logger struct {
	host       any
	fallback   Fallback
	onFallback func()
}

// Option configures a Logger.
type Option func(*Logger)

// WithFallback replaces the stdout fallback channel.
func WithFallback(fallback Fallback) Option {
	return func(l *Logger) {
		l.fallback = fallback
	}
}

// WithFallbackHook registers a function run whenever a line takes the fallback channel.
func WithFallbackHook(hook func()) Option {
	return func(l *Logger) {
		l.onFallback = hook
	}
}

// New wraps host, which may be nil or of any shape.
func New(host any, options ...Option) *Logger {
	l := &Logger{
		host:     host,
		fallback: DefaultFallback,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *Logger) Info(msg string) {
	l.call("info", msg)
}

// Warning tries the host's "warning" capability and then "warn".
func (l *Logger) Warning(msg string) {
	if !Supports(l.host, "warning") && Supports(l.host, "warn") {
		l.call("warn", msg)
		return
	}
	l.call("warning", msg)
}

func (l *Logger) Error(msg string) {
	l.call("error", msg)
}

func (l *Logger) Debug(msg string) {
	l.call("debug", msg)
}

// Usable reports whether the host logger can take info lines, the minimum a
// host logger must offer to be worth delegating to.
func (l *Logger) Usable() bool {
	return Supports(l.host, "info")
}

func (l *Logger) call(method, msg string) {
	SafeCall(l.host, method, []any{msg}, l.divert)
}

func (l *Logger) divert(method string, args []any) {
	if l.onFallback != nil {
		func() {
			defer func() { _ = recover() }()
			l.onFallback()
		}()
	}
	fallback := l.fallback
	if fallback == nil {
		fallback = DefaultFallback
	}
	fallback(method, args)
}

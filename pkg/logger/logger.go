package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/pkg/config"
	"github.com/rs/zerolog"
)

// ServiceName is stamped on every entry of the process logger
const ServiceName = "vega-orders"

// Field names shared by every component
const (
	FieldComponent = "component"
	FieldOrderID   = "order_id"
	FieldBroker    = "broker"
)

// Logger is a structured logger wrapper around zerolog
// ⭐ SSOT: 모든 로깅은 이 패키지를 통해서만 수행
type Logger struct {
	zlog zerolog.Logger
}

// New creates the process logger from config. Entries go to stderr so
// command output on stdout stays machine readable.
// ⭐ SSOT: zerolog 인스턴스는 여기서만 생성
func New(cfg *config.Config) *Logger {
	var output io.Writer = os.Stderr
	if cfg.LogFormat == "console" || cfg.LogFormat == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	zlog := newZerolog(output, cfg.LogLevel).
		With().
		Str("env", cfg.Env).
		Str("service", ServiceName).
		Logger()
	return &Logger{zlog: zlog}
}

// NewWithWriter creates a JSON logger writing to w at the given level
func NewWithWriter(w io.Writer, level string) *Logger {
	return &Logger{zlog: newZerolog(w, level)}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// The level is set per logger, never globally, so several can coexist in one process
func newZerolog(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLogLevel(level)).With().Timestamp().Logger()
}

func parseLogLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.zlog.Debug().Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.zlog.Info().Msg(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.zlog.Warn().Msg(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.zlog.Error().Msg(msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) {
	l.zlog.Fatal().Msg(msg)
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zlog: l.zlog.With().Interface(key, value).Logger()}
}

// WithFields returns a new logger with multiple fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// WithError returns a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zlog: l.zlog.With().Err(err).Logger()}
}

// WithComponent tags every entry with the emitting component
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str(FieldComponent, name).Logger()}
}

// WithOrder tags every entry with an internal order id
func (l *Logger) WithOrder(orderID string) *Logger {
	return &Logger{zlog: l.zlog.With().Str(FieldOrderID, orderID).Logger()}
}

// WithBroker tags every entry with a venue name
func (l *Logger) WithBroker(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str(FieldBroker, name).Logger()}
}

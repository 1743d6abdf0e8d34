package logger

import (
	"context"
	"os"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// SubjectKey is the context key for the authenticated caller
	SubjectKey ContextKey = "subject"
)

// maxQueryLen caps free-text search terms written to the log
const maxQueryLen = 64

// Logger wraps zap.Logger with request context helpers
type Logger struct {
	*zap.Logger
	enableRequestID bool
}

// Config for logger initialization
type Config struct {
	Level           string
	Format          string // "json" or "console"
	OutputPath      string // "stdout", "stderr" or a file path rotated by lumberjack
	MaxSizeMB       int
	MaxBackups      int
	MaxAgeDays      int
	Compress        bool
	EnableRequestID bool
}

// New creates a new logger
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.CallerKey = "caller"
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, writerFor(cfg), zap.NewAtomicLevelAt(level))

	zapLogger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	return &Logger{
		Logger:          zapLogger,
		enableRequestID: cfg.EnableRequestID,
	}, nil
}

func writerFor(cfg Config) zapcore.WriteSyncer {
	switch cfg.OutputPath {
	case "", "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.OutputPath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

// FromZap wraps an existing zap logger, mainly for tests
func FromZap(z *zap.Logger) *Logger {
	return &Logger{Logger: z, enableRequestID: true}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return FromZap(zap.NewNop())
}

// WithContext creates a logger with request context fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := []zap.Field{}

	if l.enableRequestID {
		if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
			fields = append(fields, zap.String("request_id", requestID))
		}
	}

	if subject, ok := ctx.Value(SubjectKey).(string); ok && subject != "" {
		fields = append(fields, zap.String("subject", subject))
	}

	if len(fields) == 0 {
		return l
	}
	return &Logger{
		Logger:          l.Logger.With(fields...),
		enableRequestID: l.enableRequestID,
	}
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// Named returns a named child logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		Logger:          l.Logger.Named(name),
		enableRequestID: l.enableRequestID,
	}
}

// With creates a child logger with additional fields
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		Logger:          l.Logger.With(fields...),
		enableRequestID: l.enableRequestID,
	}
}

// Default fields for structured logging
func RequestID(id string) zap.Field {
	return zap.String("request_id", id)
}

func Component(name string) zap.Field {
	return zap.String("component", name)
}

func Operation(name string) zap.Field {
	return zap.String("operation", name)
}

// Identifier logs a reference data identifier. Identifiers are public data.
func Identifier(code string) zap.Field {
	return zap.String("identifier", code)
}

func IdentifierKind(kind string) zap.Field {
	return zap.String("identifier_kind", kind)
}

// Query logs a free-text search term, truncated
func Query(q string) zap.Field {
	return zap.String("query", Truncate(q, maxQueryLen))
}

func Count(n int) zap.Field {
	return zap.Int("count", n)
}

func Duration(d int64) zap.Field {
	return zap.Int64("duration_ms", d)
}

func HTTPStatus(status int) zap.Field {
	return zap.Int("http_status", status)
}

func ErrorField(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.Error(err)
}

// Truncate shortens s to at most n runes, marking the cut with "..."
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

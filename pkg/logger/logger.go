// Package logger provides structured logging for all services.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap's sugared logger with service context
type Logger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new logger for the given service.
// An optional level ("debug", "info", "warn", "error") may be passed;
// it defaults to info.
func NewLogger(service string, level ...string) *Logger {
	logLevel := zapcore.InfoLevel
	if len(level) > 0 {
		if parsed, err := zapcore.ParseLevel(level[0]); err == nil {
			logLevel = parsed
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		logLevel,
	)

	zapLogger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", service))

	return &Logger{sugar: zapLogger.Sugar()}
}

// NewNop returns a logger that discards all output (for tests)
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs an info message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.sugar.Fatalw(msg, keysAndValues...)
}

// With returns a logger with additional context
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}

// ForRequest returns a logger scoped to a single HTTP request
func (l *Logger) ForRequest(requestID, method, path string) *Logger {
	return l.With("request_id", requestID, "method", method, "path", path)
}

// Zap returns the underlying zap logger for packages that take *zap.Logger
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Sync flushes buffered log entries
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

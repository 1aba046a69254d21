package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	connectionIDKey
)

// WithSessionID tags ctx with the controller session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// WithConnectionID tags ctx with the bridge connection id.
func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connectionIDKey, id)
}

// ContextLogger provides context-aware logging
type ContextLogger struct {
	logger *zap.Logger
}

func NewContextLogger(logger *zap.Logger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

// WithContext adds the ids carried by ctx as fields.
func (cl *ContextLogger) WithContext(ctx context.Context) *zap.Logger {
	fields := make([]zapcore.Field, 0, 2)
	if id, ok := ctx.Value(sessionIDKey).(string); ok && id != "" {
		fields = append(fields, zap.String("session_id", id))
	}
	if id, ok := ctx.Value(connectionIDKey).(string); ok && id != "" {
		fields = append(fields, zap.String("connection_id", id))
	}

	if len(fields) == 0 {
		return cl.logger
	}
	return cl.logger.With(fields...)
}

// Sugar returns the sugared logger for ctx.
func (cl *ContextLogger) Sugar(ctx context.Context) *zap.SugaredLogger {
	return cl.WithContext(ctx).Sugar()
}

func (cl *ContextLogger) LogError(ctx context.Context, err error, message string, fields ...zapcore.Field) {
	cl.WithContext(ctx).With(zap.Error(err)).Error(message, fields...)
}

func (cl *ContextLogger) LogInfo(ctx context.Context, message string, fields ...zapcore.Field) {
	cl.WithContext(ctx).Info(message, fields...)
}

func (cl *ContextLogger) LogDebug(ctx context.Context, message string, fields ...zapcore.Field) {
	cl.WithContext(ctx).Debug(message, fields...)
}

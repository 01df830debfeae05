package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "notify-daemon"

type cycleIDKey struct{}

// NewLogger builds the JSON process logger. Every entry carries the service
// and worker name so lines from several workers can share one sink.
func NewLogger(level string, worker string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	// Per-client lines repeat the same message for the whole batch.
	cfg.Sampling = nil
	cfg.InitialFields = map[string]interface{}{"service": serviceName}
	if worker = strings.TrimSpace(worker); worker != "" {
		cfg.InitialFields["worker"] = worker
	}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}

	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

// WithCycleID tags ctx with the id of the polling cycle it belongs to.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, cycleIDKey{}, cycleID)
}

func CycleIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	cycleID, _ := ctx.Value(cycleIDKey{}).(string)
	return cycleID, cycleID != ""
}

// WithContextLogger returns logger with the cycle id carried by ctx attached.
// A nil logger yields a no-op logger.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	if cycleID, ok := CycleIDFromContext(ctx); ok {
		return logger.With(zap.String("cycleId", cycleID))
	}
	return logger
}

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Level is an alias for slog.Level
type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug // -4
	LevelInfo    = slog.LevelInfo  // 0
	LevelWarning = slog.LevelWarn  // 4
	LevelError   = slog.LevelError // 8
	LevelFatal   = slog.Level(12)  // 12
)

// Config selects the handler, level and sampling. ConfigFromEnv reads it
// from LOG_LEVEL, ERROR_SAMPLE_RATE, OTEL_ENABLED and OTEL_SERVICE_NAME.
type Config struct {
	Level       slog.Level
	SampleRate  int // log 1 of every N warnings/errors; <= 1 logs all
	OTELEnabled bool
	ServiceName string
	Output      io.Writer // JSON output, stdout when nil
}

var (
	programLevel          = new(slog.LevelVar)
	Logger                = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: programLevel}))
	errorSampleRate int32 = 100
	shutdownFunc    func(context.Context) error // nil unless OTEL is enabled
)

// Counters for the metrics endpoint, incremented regardless of sampling
var (
	TotalErrors   atomic.Int64
	TotalWarnings atomic.Int64
)

// ConfigFromEnv builds a Config from the environment. Defaults: INFO,
// 1 in 100 warnings/errors, JSON output.
func ConfigFromEnv() Config {
	cfg := Config{
		Level:       LevelInfo,
		SampleRate:  100,
		OTELEnabled: strings.ToLower(os.Getenv("OTEL_ENABLED")) == "true",
		ServiceName: os.Getenv("OTEL_SERVICE_NAME"),
	}

	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		if level, err := ParseLevel(levelStr); err == nil {
			cfg.Level = level
		}
	}

	if sampleStr := os.Getenv("ERROR_SAMPLE_RATE"); sampleStr != "" {
		if rate, err := strconv.Atoi(sampleStr); err == nil && rate > 0 {
			cfg.SampleRate = rate
		}
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "cellrules"
	}
	return cfg
}

// Setup installs the process logger described by cfg and makes it the
// slog default. When the OTEL exporter cannot be created it falls back to
// JSON and returns the error.
func Setup(ctx context.Context, cfg Config) error {
	programLevel.Set(cfg.Level)
	rate := cfg.SampleRate
	if rate < 1 {
		rate = 1
	}
	atomic.StoreInt32(&errorSampleRate, int32(rate))

	if cfg.OTELEnabled {
		shutdown, err := setupOTELLogging(ctx, cfg.ServiceName)
		if err == nil {
			shutdownFunc = shutdown
			Info("OpenTelemetry logging enabled", "service", cfg.ServiceName, "sample_rate", rate)
			return nil
		}
		setupJSONLogging(cfg.Output)
		return fmt.Errorf("failed to setup OTEL logging, falling back to JSON: %w", err)
	}

	setupJSONLogging(cfg.Output)
	return nil
}

func setupJSONLogging(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: programLevel})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	otelHandler := otelslog.NewHandler(
		serviceName,
		otelslog.WithLoggerProvider(loggerProvider),
	)

	Logger = slog.New(&levelHandler{level: programLevel, handler: otelHandler})
	slog.SetDefault(Logger)

	return loggerProvider.Shutdown, nil
}

// levelHandler filters records below level before the wrapped handler sees them
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTEL exporter. Call it during application shutdown.
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

// SetLevel sets the minimum log level
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a level name to slog.Level
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

// shouldSample returns true for 1 out of every errorSampleRate calls on average
func shouldSample() bool {
	rate := atomic.LoadInt32(&errorSampleRate)
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// Trace logs a trace-level message (never sampled)
func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs a debug-level message (never sampled)
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message (never sampled)
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn counts the warning and logs it when sampled
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// WarnAlways counts and logs a warning, bypassing sampling. Use it for
// one-off conditions such as a degraded startup.
func WarnAlways(msg string, args ...any) {
	TotalWarnings.Add(1)
	Logger.Warn(msg, args...)
}

// Error counts the error and logs it when sampled
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs a fatal-level message, flushes OTEL and exits
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}

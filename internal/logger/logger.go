package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/marminbh/automation-svc/internal/config"
)

const serviceName = "automation-svc"

var Logger *zap.Logger

// Init builds the process logger from cfg. Level defaults to info. Format is
// "json" or "console"; when empty, debug level picks console and everything
// else json.
func Init(cfg config.LogConfig) error {
	built, err := New(cfg)
	if err != nil {
		return err
	}
	Logger = built
	return nil
}

// New builds a logger without installing it
func New(cfg config.LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(cfg.Level)))); err != nil || cfg.Level == "" {
		level = zapcore.InfoLevel
	}

	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format == "" {
		format = "json"
		if level == zapcore.DebugLevel {
			format = "console"
		}
	}

	var zc zap.Config
	switch format {
	case "json":
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.LevelKey = "level"
		zc.EncoderConfig.MessageKey = "message"
		zc.EncoderConfig.CallerKey = "caller"
		zc.EncoderConfig.StacktraceKey = "stacktrace"
	case "console":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	built, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return built.With(zap.String("service", serviceName)), nil
}

// L returns the process logger, or a no-op logger before Init has run
func L() *zap.Logger {
	if Logger == nil {
		return zap.NewNop()
	}
	return Logger
}

// Sync flushes any buffered log entries
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Fatal logs and exits, falling back to a bare logger before Init
func Fatal(msg string, fields ...zap.Field) {
	if Logger == nil {
		zap.NewExample().Fatal(msg, fields...)
	}
	Logger.Fatal(msg, fields...)
}

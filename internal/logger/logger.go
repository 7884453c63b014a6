// Package logger provides structured logging for the crawler.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Interface defines the logger contract passed from the supervisor into
// workers. Fields are variadic key-value pairs.
type Interface interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Fatal(msg string, fields ...any)
	With(fields ...any) Interface
}

// Logger implements Interface on top of zap.
type Logger struct {
	zapLogger *zap.Logger
}

// logLevels maps string levels to zapcore.Level.
var logLevels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"fatal": zapcore.FatalLevel,
}

// debugEnvLevels maps the numeric DEBUG environment variable to level names.
var debugEnvLevels = map[string]string{
	"1": "debug",
	"2": "info",
	"3": "warn",
	"4": "error",
}

// New creates a logger at the given level with the given encoding
// ("console" or "json").
func New(level Level, encoding string, development bool) (Interface, error) {
	zapLevel, ok := logLevels[string(level)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	if development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.ConsoleSeparator = " | "
	}

	var encoder zapcore.Encoder
	switch encoding {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console", "":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEncoding, encoding)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zapLevel)

	return &Logger{zapLogger: zap.New(core)}, nil
}

// ResolveLevel determines the log level from the environment: the DEBUG
// variable (1..4) wins; otherwise the level file at $HOME/.logging.json is
// consulted; the fallback is "info".
func ResolveLevel() Level {
	if lvl, ok := debugEnvLevels[os.Getenv("DEBUG")]; ok {
		return Level(lvl)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return InfoLevel
	}

	raw, err := os.ReadFile(filepath.Join(home, ".logging.json"))
	if err != nil {
		return InfoLevel
	}

	var file struct {
		Level string `json:"level"`
	}
	if unmarshalErr := json.Unmarshal(raw, &file); unmarshalErr != nil {
		return InfoLevel
	}

	if _, known := logLevels[file.Level]; known {
		return Level(file.Level)
	}

	return InfoLevel
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...any) {
	l.zapLogger.Debug(msg, toZapFields(fields)...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...any) {
	l.zapLogger.Info(msg, toZapFields(fields)...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...any) {
	l.zapLogger.Warn(msg, toZapFields(fields)...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...any) {
	l.zapLogger.Error(msg, toZapFields(fields)...)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(msg string, fields ...any) {
	l.zapLogger.Fatal(msg, toZapFields(fields)...)
}

// With creates a new logger with the given fields attached.
func (l *Logger) With(fields ...any) Interface {
	return &Logger{zapLogger: l.zapLogger.With(toZapFields(fields)...)}
}

// toZapFields converts variadic key-value pairs to zap fields. A trailing
// key with no value and non-string keys are skipped.
func toZapFields(fields []any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	zapFields := make([]zap.Field, 0, len(fields)/2)
	for i := 0; i < len(fields); i++ {
		switch field := fields[i].(type) {
		case zap.Field:
			zapFields = append(zapFields, field)
		case string:
			if i+1 >= len(fields) {
				continue
			}
			zapFields = append(zapFields, zap.Any(field, fields[i+1]))
			i++
		}
	}

	return zapFields
}

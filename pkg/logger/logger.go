// Package logger builds the zap.Logger used across the storage and
// indexing core: one core (encoder + sink + level), a service tag, and
// nothing else configurable that the core packages would need to reach
// past to get a usable logger.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects a log level, an output format, and a destination.
type Config struct {
	Level      string `yaml:"level"`       // "debug", "info", "warn", "error"; invalid or empty falls back to info
	Format     string `yaml:"format"`      // "json" or "console"; anything else is treated as json
	OutputFile string `yaml:"output_file"` // path, or "stdout"/"stderr"; empty means stdout
}

// New builds a *zap.Logger from config, tagging every entry with
// service=pagestore plus any extra fields the caller supplies. Call it
// once at process startup; downstream code takes the *zap.Logger as a
// dependency rather than building its own.
func New(config Config, extraFields ...zap.Field) (*zap.Logger, error) {
	sink, err := openSink(config.OutputFile)
	if err != nil {
		return nil, err
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(config.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	core := zapcore.NewCore(buildEncoder(config.Format), sink, level)
	fields := append([]zap.Field{zap.String("service", "pagestore")}, extraFields...)
	return zap.New(core, zap.AddCaller()).WithOptions(zap.Fields(fields...)), nil
}

// Nop returns a logger that discards everything, for callers that don't
// configure one explicitly.
func Nop() *zap.Logger { return zap.NewNop() }

func buildEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	switch strings.ToLower(format) {
	case "console":
		return zapcore.NewConsoleEncoder(cfg)
	default:
		return zapcore.NewJSONEncoder(cfg)
	}
}

func openSink(dest string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(dest) {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	f, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", dest, err)
	}
	return zapcore.AddSync(f), nil
}

// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger flavour. Level and Encoding override the preset
// when set.
type Options struct {
	Development bool
	// Level is a zap level name such as "debug" or "warn".
	Level string
	// Encoding is "json" or "console".
	Encoding string
	// OutputPaths are zap sink URLs or file paths, e.g. "stderr" or
	// "var/log/cache_warmer.log". Missing parent directories are created.
	OutputPaths []string
}

// New builds a zap.Logger configured for development or production.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"

	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	switch opts.Encoding {
	case "":
	case "json":
		cfg.Encoding = "json"
		cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	case "console":
		cfg.Encoding = "console"
	default:
		return nil, fmt.Errorf("unknown log encoding %q", opts.Encoding)
	}

	if len(opts.OutputPaths) > 0 {
		for _, p := range opts.OutputPaths {
			if err := ensureLogDir(p); err != nil {
				return nil, err
			}
		}
		cfg.OutputPaths = opts.OutputPaths
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func ensureLogDir(path string) error {
	if path == "stdout" || path == "stderr" || strings.Contains(path, "://") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	return nil
}

package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"relator-ai/internal/infra/config"
)

// New builds the process logger from config: level, text or JSON handler,
// and an output target (stderr, stdout, or a file path). The second return
// closes the output; defer it at the wiring site.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	writer, closer, err := resolveOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}

	opts := &slog.HandlerOptions{Level: levelFrom(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler), closer, nil
}

// levelFrom maps the config string to a slog.Level, defaulting to Info on
// anything unrecognized.
func levelFrom(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// resolveOutput opens the configured log destination. stderr is the
// default: stdout carries the command's JSON output and must stay clean.
func resolveOutput(target string) (io.Writer, func() error, error) {
	keepOpen := func() error { return nil }

	switch strings.ToLower(target) {
	case "stdout":
		return os.Stdout, keepOpen, nil
	case "stderr", "":
		return os.Stderr, keepOpen, nil
	default:
		f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}

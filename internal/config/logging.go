package config

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger: JSON records to stdout, copied to
// the configured log file when one is set. The returned closer is a
// no-op when no file is in play.
func NewLogger(cfg *Config) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stdout
	closer := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(os.Stdout, f)
		closer = func() { _ = f.Close() }
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, closer, nil
}

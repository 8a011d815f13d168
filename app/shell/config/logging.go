package config

import (
	"io"
	"log/slog"
)

// NewLogHandler builds the text or JSON slog handler described by cfg.
// With forSQL set, DebugSQL lowers the level to debug so the store's SQL statements show up.
func NewLogHandler(w io.Writer, cfg LoggingConfig, forSQL bool) (slog.Handler, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	if forSQL && cfg.DebugSQL {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == LogFormatJSON {
		return slog.NewJSONHandler(w, opts), nil
	}

	return slog.NewTextHandler(w, opts), nil
}

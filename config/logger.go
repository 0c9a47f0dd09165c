package config

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger from the log configuration.
// Unknown levels fall back to info.
func NewLogger(cfg LogConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "chat").Logger()
}

package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupLogging configures the global zerolog logger.
func setupLogging(cfg LogConfig, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	log.Info().Str("loglevel", level.String()).Msg("logging set up")
}

// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects level and output format.
type Config struct {
	Level  string
	Format string
	// Verbosity raises the level by one step per count (info, debug, trace).
	Verbosity int
}

// New builds a logger writing to os.Stderr and installs it as log.Logger.
func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter builds a logger writing to w and installs it as log.Logger.
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(w).
		Level(ResolveLevel(cfg.Level, cfg.Verbosity)).
		With().
		Timestamp().
		Str("service", "docdb-gateway").
		Logger()

	log.Logger = logger
	return logger
}

// ResolveLevel parses level and lowers it by verbosity steps. Unknown levels
// fall back to info.
func ResolveLevel(level string, verbosity int) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	for i := 0; i < verbosity && lvl > zerolog.TraceLevel; i++ {
		lvl--
	}
	return lvl
}

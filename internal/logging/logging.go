// Package logging provides the structured logger shared across vtagger's
// umbrella client, tagging pipeline, and sync coordinator.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, replaced by Init.
var Logger zerolog.Logger

func init() {
	Logger = New(Config{Level: "info", Format: "json"})
}

// Config controls the global logger's level, format, and output stream.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output io.Writer
}

// New builds a zerolog.Logger from cfg. Output defaults to stdout.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}
	if strings.ToLower(cfg.Format) == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", "vtagger").
		Logger()
}

// Init replaces the global logger with one built from cfg.
func Init(cfg Config) {
	Logger = New(cfg)
}

// Component returns a sub-logger tagged with the given component name,
// mirroring how each of umbrella/pipeline/sync carries its own logger.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Package logging builds the structured logger shared by the commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Service string
	Version string

	// Level is a zerolog level name. Default: info
	Level string

	// File receives a copy of every entry, appended (optional).
	File string

	// Stdout overrides the console destination (optional, defaults to os.Stdout).
	Stdout io.Writer
}

// New builds a JSON logger writing to stdout and, when configured, to the
// log file. If the log file cannot be opened the returned logger still
// writes to stdout and the error is returned alongside it.
// The returned close function releases the log file.
func New(cfg Config) (zerolog.Logger, func() error, error) {
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	level, levelErr := ParseLevel(cfg.Level)

	var (
		out     io.Writer = stdout
		closeFn           = func() error { return nil }
		fileErr error
	)

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fileErr = fmt.Errorf("opening log file: %w", err)
		} else {
			out = zerolog.MultiLevelWriter(stdout, f)
			closeFn = f.Close
		}
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.Service).
		Str("version", cfg.Version).
		Logger()

	if levelErr != nil {
		logger.Warn().Err(levelErr).Str("level", cfg.Level).Msg("invalid log level, using info")
	}

	return logger, closeFn, fileErr
}

// ParseLevel parses a level name, defaulting to info for an empty string.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel, err
	}
	return level, nil
}

// Package logger builds the process zerolog.Logger from configuration.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lazypower/rapport/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init builds a logger from cfg and installs it as the zerolog global. The
// returned closer releases the log file when output is "file"; it is a no-op
// otherwise.
func Init(cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	l, closer, err := New(cfg)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}
	log.Logger = l
	return l, closer, nil
}

// New builds a logger from cfg without touching globals.
func New(cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	levelName := strings.ToLower(cfg.Level)
	if levelName == "" {
		levelName = "info"
	}
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	case "file":
		if cfg.FilePath == "" {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("log output file requires file_path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("open log file %q: %w", cfg.FilePath, err)
		}
		out, closer = f, f
	default:
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	return build(out, cfg.Format, level), closer, nil
}

// NewWriter builds a logger writing to w. Used by tests and by commands
// that print to a caller-supplied stream.
func NewWriter(w io.Writer, format string, level zerolog.Level) zerolog.Logger {
	return build(w, format, level)
}

func build(w io.Writer, format string, level zerolog.Level) zerolog.Logger {
	if strings.ToLower(format) == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

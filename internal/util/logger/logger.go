// Package logger builds the application *slog.Logger for a given environment.
package logger

import (
	"io"
	"log/slog"
	"os"

	"drilltrack/internal/util/logger/handlers/slogpretty"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// FileConfig describes an optional rotating log file. Empty Path disables it.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup returns a logger for env writing to stdout and, when configured, to a
// rotating file. The returned closer releases the file.
func Setup(env string, file FileConfig) (*slog.Logger, io.Closer) {
	return SetupWriter(env, os.Stdout, file)
}

func SetupWriter(env string, out io.Writer, file FileConfig) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if file.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			LocalTime:  true,
		}
		out = io.MultiWriter(out, lj)
		closer = lj
	}

	var log *slog.Logger

	switch env {
	case EnvLocal:
		log = setupPrettySlog(out)
	case EnvDev:
		log = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		log = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return log, closer
}

func setupPrettySlog(out io.Writer) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(out)

	return slog.New(handler)
}

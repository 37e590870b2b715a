package config

import (
	"io"
	"log/slog"
	"os"

	scfg "github.com/ihippik/config"
	slogsentry "github.com/ihippik/slog-sentry"
)

var levels = map[scfg.LoggerLevel]slog.Level{
	scfg.LoggerLevelDebug: slog.LevelDebug,
	scfg.LoggerLevelInfo:  slog.LevelInfo,
	scfg.LoggerLevelWarn:  slog.LevelWarn,
	scfg.LoggerLevelError: slog.LevelError,
}

// InitSlog builds the agent's diagnostic logger on stderr. The agent runs
// inside the traced JVM, so stdout belongs to the application.
func (c *Config) InitSlog(version string) *slog.Logger {
	return c.newSlog(os.Stderr, version)
}

func (c *Config) newSlog(w io.Writer, version string) *slog.Logger {
	var (
		handler slog.Handler
		lcfg    scfg.Logger
	)

	if c.Logger != nil {
		lcfg = *c.Logger
	}

	opt := slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if lvl, ok := levels[lcfg.Level]; ok {
		opt.Level = lvl
	}

	handler = slog.NewTextHandler(w, &opt)

	if lcfg.Fmt == "json" {
		handler = slog.NewJSONHandler(w, &opt)
	}

	if c.Monitoring.SentryDSN != "" {
		handler = slogsentry.NewSentryHandler(handler, []slog.Level{slog.LevelWarn, slog.LevelError})
	}

	return slog.New(handler).With("version", version)
}

// Package logger builds the process-wide slog logger: JSON records to stdout
// and a rotated file, sensitive attributes masked, warnings and errors
// mirrored to Sentry when a DSN is configured.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger.
type Options struct {
	Level         string
	FilePath      string
	MaxSizeMB     int
	MaxBackups    int
	MaxAgeDays    int
	SentryEnabled bool
}

// New builds the root logger and installs it as the slog default.
func New(opts Options) *slog.Logger {
	level := parseLevel(opts.Level)

	writers := []io.Writer{os.Stdout}
	if opts.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
			Compress:   true,
		})
	}

	json := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})

	var handler slog.Handler = json
	if opts.SentryEnabled {
		handler = slogmulti.Fanout(
			json,
			slogsentry.Option{Level: slog.LevelWarn}.NewSentryHandler(),
		)
	}

	log := slog.New(NewMaskingHandler(handler))
	slog.SetDefault(log)
	return log
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

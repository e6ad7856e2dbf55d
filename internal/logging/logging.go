// Package logging builds the service logger: text in development, JSON
// elsewhere, with error records forwarded to Rollbar when a token is set.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"
)

type Options struct {
	Env          string
	Level        string
	RollbarToken string
	Host         string
}

func New(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level, opts.Env)}

	var handler slog.Handler
	switch opts.Env {
	case "prod", "production", "staging":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	if opts.RollbarToken != "" {
		rollbar.SetToken(opts.RollbarToken)
		rollbar.SetEnvironment(opts.Env)
		rollbar.SetServerHost(opts.Host)
		rollbar.SetStackTracer(rollbarerrors.StackTracer)
		rollbar.SetEnabled(true)
		handler = NewReportingHandler(handler, sendToRollbar)
	}
	return slog.New(handler)
}

// Close flushes queued Rollbar items.
func Close() {
	rollbar.Close()
}

func parseLevel(level, env string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if env == "prod" || env == "production" {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func sendToRollbar(level slog.Level, msg string, err error, extras map[string]interface{}) {
	args := make([]interface{}, 0, 3)
	if err != nil {
		args = append(args, err)
	}
	args = append(args, msg, extras)
	if level >= slog.LevelError+4 {
		rollbar.Critical(args...)
		return
	}
	rollbar.Error(args...)
}

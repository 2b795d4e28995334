package apperr

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/qsmarket/market-bot/pkg/logger"
)

var errorRecorder = func(code, severity string) {}

// RegisterErrorRecorder lets the metrics package observe handled errors.
func RegisterErrorRecorder(recorder func(code, severity string)) {
	if recorder == nil {
		errorRecorder = func(string, string) {}
		return
	}

	errorRecorder = recorder
}

// Handler turns any error into the i18n key of the message shown to the
// user, logging and reporting as a side effect.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{log: log, sentryEnabled: sentryEnabled}
}

// Handle logs the error and returns the i18n key to show the user plus
// whether the user may simply retry the same action.
func (h *Handler) Handle(ctx context.Context, err error) (userKey string, retryable bool) {
	if err == nil {
		return "", false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		attrs := []any{
			slog.String("code", appErr.Code),
			slog.String("message", appErr.Message),
			slog.String("severity", string(appErr.Severity)),
			slog.Bool("retryable", appErr.Retryable),
		}
		if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
			attrs = append(attrs, slog.String("correlation_id", correlationID))
		}
		h.log.Error("application error", attrs...)
		errorRecorder(appErr.Code, string(appErr.Severity))

		if h.sentryEnabled && (appErr.Severity == SeverityCritical || appErr.Severity == SeverityHigh) {
			h.report(err)
		}

		key := appErr.UserKey
		if key == "" {
			key = "errors.generic"
		}
		return key, appErr.Retryable
	}

	attrs := []any{
		slog.String("message", err.Error()),
		slog.String("severity", string(SeverityHigh)),
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}
	h.log.Error("unknown error", attrs...)
	errorRecorder("unknown", string(SeverityHigh))

	if h.sentryEnabled {
		h.report(err)
	}
	return "errors.generic", false
}

func (h *Handler) report(err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		var appErr *Error
		if errors.As(err, &appErr) && appErr != nil {
			if appErr.Code != "" {
				scope.SetTag("code", appErr.Code)
			}
			if appErr.Severity != "" {
				scope.SetTag("severity", string(appErr.Severity))
			}
		}
		sentry.CaptureException(err)
	})
}

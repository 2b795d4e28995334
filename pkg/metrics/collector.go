// Package metrics exposes Prometheus instrumentation for the bot: dispatch
// outcomes, wizard step transitions, message-lifecycle operations, and live
// session gauges.
package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/qsmarket/market-bot/internal/apperr"
	"github.com/qsmarket/market-bot/internal/dispatch"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/state"
)

var (
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_dispatch_total",
			Help: "Updates processed, labeled by handler and outcome",
		},
		[]string{"handler", "outcome"},
	)
	dispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_dispatch_duration_seconds",
			Help:    "Handler execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)
	stepTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_step_transitions_total",
			Help: "Wizard step transitions, labeled by wizard namespace",
		},
		[]string{"from", "to"},
	)
	renderTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_render_transitions_total",
			Help: "Message keyboard-mode transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_errors_total",
			Help: "Errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_active_sessions",
			Help: "Users currently inside a wizard",
		},
	)
	sessionsByWizard = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_sessions_by_wizard",
			Help: "Live sessions grouped by wizard namespace",
		},
		[]string{"wizard"},
	)
)

// Register wires the package-level recorder hooks to Prometheus.
func Register() {
	dispatch.RegisterDispatchRecorder(RecordDispatch)
	state.RegisterTransitionRecorder(RecordStepTransition)
	render.RegisterOperationRecorder(RecordRenderTransition)
	apperr.RegisterErrorRecorder(RecordError)
}

// RecordDispatch counts one handler invocation.
func RecordDispatch(handler, outcome string, elapsed time.Duration) {
	if handler == "" {
		handler = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}

	dispatchTotal.WithLabelValues(handler, outcome).Inc()
	dispatchDurationSeconds.WithLabelValues(handler).Observe(elapsed.Seconds())
}

// RecordStepTransition counts one wizard step change. Steps collapse to
// their wizard namespace so OTP payloads never become label values.
func RecordStepTransition(from, to string) {
	stepTransitionsTotal.WithLabelValues(wizardOf(from), wizardOf(to)).Inc()
}

// RecordRenderTransition counts one keyboard-mode transition.
func RecordRenderTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	if to == "" {
		to = "none"
	}

	renderTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordError counts one handled error.
func RecordError(code, severity string) {
	if code == "" {
		code = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(code, severity).Inc()
}

// wizardOf reduces a step like "kyc_step_otp:48213" to "kyc".
func wizardOf(step string) string {
	if step == "" {
		return "idle"
	}
	if idx := strings.Index(step, "_"); idx > 0 {
		return step[:idx]
	}
	return step
}

// SessionCollector periodically scans live sessions and updates the gauges.
type SessionCollector struct {
	store    state.Store
	interval time.Duration
}

// NewSessionCollector builds a collector over the conversation store.
func NewSessionCollector(store state.Store, interval time.Duration) *SessionCollector {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &SessionCollector{store: store, interval: interval}
}

// Run updates the session gauges until ctx is cancelled.
func (c *SessionCollector) Run(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *SessionCollector) collect(ctx context.Context) {
	sessions, err := c.store.Sessions(ctx)
	if err != nil {
		return
	}

	activeSessions.Set(float64(len(sessions)))

	counts := make(map[string]int, len(sessions))
	for _, sess := range sessions {
		if sess == nil {
			continue
		}
		counts[wizardOf(string(sess.Step))]++
	}

	sessionsByWizard.Reset()
	for wizard, count := range counts {
		sessionsByWizard.WithLabelValues(wizard).Set(float64(count))
	}
}

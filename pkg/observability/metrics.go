package observability

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/photobooth/pkg/domain"
)

// Metrics holds the booth collectors.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	Captures          prometheus.Counter
	SessionsCompleted prometheus.Counter
	Errors            *prometheus.CounterVec
	ComposeDuration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photobooth_sessions_started_total",
			Help: "Total number of sessions that reached the capture view",
		}),
		Captures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photobooth_captures_total",
			Help: "Total number of stills captured",
		}),
		SessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photobooth_sessions_completed_total",
			Help: "Total number of sessions that captured every frame",
		}),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photobooth_errors_total",
				Help: "Total number of errors reported to users",
			},
			[]string{"kind"},
		),
		ComposeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photobooth_compose_duration_seconds",
			Help:    "Duration of strip composition",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}

	for _, c := range []prometheus.Collector{m.SessionsStarted, m.Captures, m.SessionsCompleted, m.Errors, m.ComposeDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPhaseChange: func(ctx context.Context, e *domain.PhaseEvent) {
			// Counting returns to AwaitingCapture after every frame; only entries from
			// Idle or a finished session are new sessions.
			if e.To == domain.PhaseAwaitingCapture && e.From != domain.PhaseCounting {
				m.SessionsStarted.Inc()
			}
		},
		OnCapture: func(ctx context.Context, e *domain.CaptureEvent) {
			m.Captures.Inc()
		},
		OnSessionComplete: func(ctx context.Context, e *domain.PhaseEvent) {
			m.SessionsCompleted.Inc()
		},
		OnError: func(ctx context.Context, e *domain.ErrorEvent) {
			m.Errors.WithLabelValues(e.Kind).Inc()
		},
		OnCompose: func(ctx context.Context, e *domain.ComposeEvent) {
			m.ComposeDuration.Observe(e.Duration.Seconds())
		},
	}
}

// LogHooks returns lifecycle hooks that write one log line per event.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPhaseChange: func(ctx context.Context, e *domain.PhaseEvent) {
			logger.InfoContext(ctx, "phase_change", "session_id", e.SessionID, "from", e.From, "to", e.To)
		},
		OnCapture: func(ctx context.Context, e *domain.CaptureEvent) {
			logger.InfoContext(ctx, "capture", "session_id", e.SessionID, "index", e.Index, "max", e.Max)
		},
		OnSessionComplete: func(ctx context.Context, e *domain.PhaseEvent) {
			logger.InfoContext(ctx, "session_complete", "session_id", e.SessionID)
		},
		OnError: func(ctx context.Context, e *domain.ErrorEvent) {
			logger.WarnContext(ctx, "booth_error", "session_id", e.SessionID, "kind", e.Kind, "err", e.Err)
		},
		OnCompose: func(ctx context.Context, e *domain.ComposeEvent) {
			logger.InfoContext(ctx, "compose", "session_id", e.SessionID, "bytes", e.Size, "duration", e.Duration)
		},
	}
}

// Combine returns hooks that call every non-nil hook of each set, in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnPhaseChange = chain(out.OnPhaseChange, h.OnPhaseChange)
		out.OnCapture = chain(out.OnCapture, h.OnCapture)
		out.OnSessionComplete = chain(out.OnSessionComplete, h.OnSessionComplete)
		out.OnError = chain(out.OnError, h.OnError)
		out.OnCompose = chain(out.OnCompose, h.OnCompose)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

// Package metrics exposes Prometheus instrumentation for the message
// pipeline. One Set owns a private registry so tests never collide on
// the global default.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set bundles the pipeline collectors behind a single registry.
type Set struct {
	registry *prometheus.Registry

	messages   *prometheus.CounterVec
	duration   prometheus.Histogram
	tokens     *prometheus.CounterVec
	deducted   prometheus.Counter
	fallbacks  prometheus.Counter
	filterHits prometheus.Counter
	relayDrops prometheus.Counter
}

// New creates a Set with process and Go runtime collectors registered.
func New() *Set {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Set{
		registry: reg,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_messages_total",
			Help: "Messages handled, by terminal response status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "parley_handle_duration_seconds",
			Help:    "End-to-end HandleMessage latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_tokens_total",
			Help: "Backend tokens consumed, by direction.",
		}, []string{"direction"}),
		deducted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_credits_deducted_total",
			Help: "Credits deducted from user balances.",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_backend_fallbacks_total",
			Help: "Thread-to-chat mode downgrades.",
		}),
		filterHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_filter_applied_total",
			Help: "Responses modified by the output filter.",
		}),
		relayDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_relay_dropped_total",
			Help: "Relay frames dropped because the inbox was full.",
		}),
	}
	reg.MustRegister(s.messages, s.duration, s.tokens, s.deducted,
		s.fallbacks, s.filterHits, s.relayDrops)
	return s
}

// Handler serves the registry in the Prometheus text format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// TrackSessions registers a gauge backed by fn, typically the session
// store's live count. Call at most once per Set.
func (s *Set) TrackSessions(fn func() float64) {
	s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "parley_sessions_active",
		Help: "Sessions currently resident in memory.",
	}, fn))
}

// TrackAuditDropped registers a counter-style gauge backed by fn, the
// audit dispatcher's dropped-event count.
func (s *Set) TrackAuditDropped(fn func() float64) {
	s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "parley_audit_dropped_total",
		Help: "Audit events dropped due to a full queue.",
	}, fn))
}

// ObserveMessage records one handled message.
func (s *Set) ObserveMessage(status string, elapsed time.Duration) {
	s.messages.WithLabelValues(status).Inc()
	s.duration.Observe(elapsed.Seconds())
}

// ObserveUsage records backend token consumption and billing outcome.
func (s *Set) ObserveUsage(promptTokens, completionTokens int, deducted int64, fellBack bool) {
	if promptTokens > 0 {
		s.tokens.WithLabelValues("prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		s.tokens.WithLabelValues("completion").Add(float64(completionTokens))
	}
	if deducted > 0 {
		s.deducted.Add(float64(deducted))
	}
	if fellBack {
		s.fallbacks.Inc()
	}
}

// ObserveFilter records an output-filter modification.
func (s *Set) ObserveFilter() { s.filterHits.Inc() }

// ObserveRelayDrop records a dropped relay frame.
func (s *Set) ObserveRelayDrop() { s.relayDrops.Inc() }

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the gateway. All methods are
// safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	RateLimitDecisions    *prometheus.CounterVec
	RateLimitEntries      prometheus.Gauge
	RateLimitFaults       prometheus.Counter
	RateLimitEventsQueued prometheus.Counter
	RateLimitEventsDrop   prometheus.Counter
	FlagEvaluations       *prometheus.CounterVec
	FlagCacheLookups      *prometheus.CounterVec
	FlagSourceFailures    prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec
}

// NewMetrics registers every collector on reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RateLimitDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_decisions_total",
				Help:      "Rate limit decisions by policy and result",
			},
			[]string{"policy", "result"},
		),
		RateLimitEntries: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ratelimit_tracked_identifiers",
				Help:      "Identifiers currently tracked by the in-memory limiter",
			},
		),
		RateLimitFaults: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_faults_total",
				Help:      "Limiter backend failures that were answered fail-open",
			},
		),
		RateLimitEventsQueued: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_rejections_recorded_total",
				Help:      "Rejected requests queued for the audit table",
			},
		),
		RateLimitEventsDrop: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_rejections_dropped_total",
				Help:      "Rejected requests dropped because the audit queue was full",
			},
		),
		FlagEvaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feature_flag_evaluations_total",
				Help:      "Feature flag evaluations by result (enabled, disabled, unknown, error)",
			},
			[]string{"result"},
		),
		FlagCacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feature_flag_snapshot_lookups_total",
				Help:      "Where flag snapshots were served from (memory, persisted, source, stale)",
			},
			[]string{"tier"},
		),
		FlagSourceFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feature_flag_source_failures_total",
				Help:      "Failed fetches from the feature flag source of truth",
			},
		),
		CircuitBreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
	}
}

func (m *Metrics) ObserveDecision(policy string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.RateLimitDecisions.WithLabelValues(policy, result).Inc()
}

func (m *Metrics) SetTrackedIdentifiers(n int) {
	if m == nil {
		return
	}
	m.RateLimitEntries.Set(float64(n))
}

func (m *Metrics) IncLimiterFault() {
	if m == nil {
		return
	}
	m.RateLimitFaults.Inc()
}

func (m *Metrics) IncRejectionRecorded() {
	if m == nil {
		return
	}
	m.RateLimitEventsQueued.Inc()
}

func (m *Metrics) IncRejectionDropped() {
	if m == nil {
		return
	}
	m.RateLimitEventsDrop.Inc()
}

func (m *Metrics) ObserveFlagEvaluation(result string) {
	if m == nil {
		return
	}
	m.FlagEvaluations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSnapshotTier(tier string) {
	if m == nil {
		return
	}
	m.FlagCacheLookups.WithLabelValues(tier).Inc()
}

func (m *Metrics) IncFlagSourceFailure() {
	if m == nil {
		return
	}
	m.FlagSourceFailures.Inc()
}

func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}

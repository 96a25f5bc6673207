package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for a single review run.
// Metrics are organized by subsystem: phases, LLM operations, screening,
// papers, and sources. Everything is registered on a private registry
// owned by the run so that concurrent runs and tests never collide.
type Metrics struct {
	registry *prometheus.Registry

	// PhasesStarted counts phase executions started, labeled by phase.
	PhasesStarted *prometheus.CounterVec

	// PhasesCompleted counts phases that finished successfully, labeled by phase.
	PhasesCompleted *prometheus.CounterVec

	// PhasesFailed counts phases that failed after exhausting retries, labeled by phase.
	PhasesFailed *prometheus.CounterVec

	// PhasesSkipped counts non-critical phases skipped after failure, labeled by phase.
	PhasesSkipped *prometheus.CounterVec

	// PhaseDuration observes phase duration in seconds, labeled by phase.
	PhaseDuration *prometheus.HistogramVec

	// PhaseRetries counts retry attempts, labeled by phase.
	PhaseRetries *prometheus.CounterVec

	// LLMRequestsTotal counts LLM API requests, labeled by agent and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by agent, model, and failure kind.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by agent and model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed, labeled by agent, model, and token type (input/output).
	LLMTokensUsed *prometheus.CounterVec

	// LLMFallbacks counts schema→text fallbacks and synthetic results, labeled by agent and kind.
	LLMFallbacks *prometheus.CounterVec

	// CircuitBreakerTrips counts circuit breaker open transitions, labeled by breaker name.
	CircuitBreakerTrips *prometheus.CounterVec

	// CircuitBreakerShortCircuits counts calls rejected without network I/O, labeled by breaker name.
	CircuitBreakerShortCircuits *prometheus.CounterVec

	// ScreeningDecisions counts screening verdicts, labeled by stage and decision.
	ScreeningDecisions *prometheus.CounterVec

	// ScreeningPrefilterHits counts papers resolved by the keyword pre-filter
	// without an LLM call, labeled by decision.
	ScreeningPrefilterHits *prometheus.CounterVec

	// PapersDiscovered counts papers returned by database searches.
	PapersDiscovered prometheus.Counter

	// PapersDuplicate counts duplicate papers removed during deduplication.
	PapersDuplicate prometheus.Counter

	// PapersBySource counts papers discovered, labeled by source.
	PapersBySource *prometheus.CounterVec

	// SourceRequestsTotal counts HTTP requests to paper source APIs, labeled by source.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed requests to paper source APIs, labeled by source.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes source API request duration in seconds, labeled by source.
	SourceRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance with all metrics registered on a
// fresh private registry. The namespace is used as a prefix for all metric
// names.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Phases
		PhasesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phases_started_total",
			Help:      "Total number of phase executions started",
		}, []string{"phase"}),
		PhasesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phases_completed_total",
			Help:      "Total number of phases completed successfully",
		}, []string{"phase"}),
		PhasesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phases_failed_total",
			Help:      "Total number of phases that failed after exhausting retries",
		}, []string{"phase"}),
		PhasesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phases_skipped_total",
			Help:      "Total number of non-critical phases skipped after failure",
		}, []string{"phase"}),
		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of workflow phases in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}, []string{"phase"}),
		PhaseRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_retries_total",
			Help:      "Total number of phase retry attempts",
		}, []string{"phase"}),

		// LLM
		LLMRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM API requests",
		}, []string{"agent", "model"}),
		LLMRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM API requests by failure kind",
		}, []string{"agent", "model", "kind"}),
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM API requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"agent", "model"}),
		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens consumed by LLM operations",
		}, []string{"agent", "model", "type"}),
		LLMFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_fallbacks_total",
			Help:      "Total number of schema fallbacks (text parse, synthetic uncertain)",
		}, []string{"agent", "kind"}),
		CircuitBreakerTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of circuit breaker open transitions",
		}, []string{"name"}),
		CircuitBreakerShortCircuits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_short_circuits_total",
			Help:      "Total number of calls rejected while a circuit was open",
		}, []string{"name"}),

		// Screening
		ScreeningDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screening_decisions_total",
			Help:      "Total number of screening verdicts by stage and decision",
		}, []string{"stage", "decision"}),
		ScreeningPrefilterHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screening_prefilter_hits_total",
			Help:      "Total number of papers resolved by the keyword pre-filter without an LLM call",
		}, []string{"decision"}),

		// Papers
		PapersDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_discovered_total",
			Help:      "Total number of papers discovered by database searches",
		}),
		PapersDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_duplicate_total",
			Help:      "Total number of duplicate papers removed",
		}),
		PapersBySource: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_by_source_total",
			Help:      "Total number of papers discovered by source",
		}, []string{"source"}),

		// Sources
		SourceRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of HTTP requests to paper source APIs",
		}, []string{"source"}),
		SourceRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed HTTP requests to paper source APIs",
		}, []string{"source"}),
		SourceRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of HTTP requests to paper source APIs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),
	}
}

// Registry returns the private registry holding this run's metrics, for
// exposure via promhttp or gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

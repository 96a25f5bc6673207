// Package observability provides logging, metrics, and cost accounting for
// the systematic review pipeline.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Per-run Prometheus metrics for phases, LLM calls, screening, and sources
//   - A cost tracker converting token usage into USD per agent
//
// All three are bundled in an Observer, constructed once per workflow run
// and passed explicitly to every component that records events. There is no
// process-global tracker: metrics live on a private registry owned by the
// Observer, so concurrent runs (and tests) never collide.
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("workflow_id", id).Msg("workflow started")
//
// # Metrics
//
//	obs := observability.NewObserver(logger, "sysrev")
//	obs.Metrics.PhasesCompleted.WithLabelValues("deduplication").Inc()
//	obs.Metrics.LLMRequestsTotal.WithLabelValues("screener", "gpt-4o").Inc()
//
// # Cost accounting
//
//	obs.Costs.Record("screener", "openai", "gpt-4o", inTokens, outTokens)
//	total := obs.Costs.TotalUSD()
//
// # Standard Fields
//
// Common fields used across the pipeline:
//
//   - workflow_id: Review run identifier
//   - phase: Workflow phase name
//   - agent: LLM agent name (screener, extractor, writer, ...)
//   - source: Paper source (arxiv, pubmed, openalex)
//   - paper_id: Paper identifier
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability

package observability

import "github.com/rs/zerolog"

// Observer bundles the logger, metrics, and cost tracker for one review
// run. It is constructed once at startup and passed explicitly to every
// component that records events, replacing any process-global trackers.
type Observer struct {
	Logger  zerolog.Logger
	Metrics *Metrics
	Costs   *CostTracker
}

// NewObserver creates an Observer with fresh metrics and cost tracking.
func NewObserver(logger zerolog.Logger, namespace string) *Observer {
	return &Observer{
		Logger:  logger,
		Metrics: NewMetrics(namespace),
		Costs:   NewCostTracker(),
	}
}

// Nop returns an Observer that logs nowhere, for tests.
func Nop() *Observer {
	return NewObserver(zerolog.Nop(), "test")
}

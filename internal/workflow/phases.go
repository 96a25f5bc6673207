package workflow

import "time"

// PhaseCriticality determines how the workflow handles exhausted retries
// for a given phase.
type PhaseCriticality int

const (
	// Critical phases cause the entire workflow to fail when retries are
	// exhausted.
	Critical PhaseCriticality = iota

	// NonCritical phases are skipped when retries are exhausted. The
	// workflow continues to the next phase with a nil phase output.
	NonCritical
)

// String returns a human-readable name for the criticality level.
func (c PhaseCriticality) String() string {
	switch c {
	case Critical:
		return "critical"
	case NonCritical:
		return "non-critical"
	default:
		return "unknown"
	}
}

// PhaseConfig holds the retry and criticality configuration for a single
// workflow phase.
type PhaseConfig struct {
	// Name is the phase identifier (e.g. "search_databases", "deduplication").
	Name string

	// Criticality determines behaviour when retries are exhausted.
	Criticality PhaseCriticality

	// MaxRetries is the maximum number of retry attempts for transient errors.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// BackoffMultiplier controls exponential growth of the backoff interval.
	BackoffMultiplier float64

	// MaxBackoff caps the maximum backoff interval.
	MaxBackoff time.Duration

	// Group names the parallel execution group, empty for sequential phases.
	Group string
}

// backoffForAttempt computes the backoff duration for the given attempt (0-indexed).
func (p PhaseConfig) backoffForAttempt(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffMultiplier)
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
			break
		}
	}
	return backoff
}

// Phase names of the standard systematic review pipeline.
const (
	PhaseSearchDatabases  = "search_databases"
	PhaseDeduplication    = "deduplication"
	PhaseTitleAbstract    = "title_abstract_screening"
	PhaseFullText         = "full_text_screening"
	PhaseDataExtraction   = "data_extraction"
	PhaseQualityAssess    = "quality_assessment"
	PhasePRISMADiagram    = "prisma_diagram"
	PhaseVisualizations   = "visualizations"
	PhaseManuscript       = "manuscript_writing"
	PhaseReportAssembly   = "report_assembly"
	analysisParallelGroup = "analysis"
)

// DefaultPhaseConfigs returns the standard phase configurations for the
// systematic review workflow.
func DefaultPhaseConfigs() map[string]PhaseConfig {
	return map[string]PhaseConfig{
		PhaseSearchDatabases: {
			Name:              PhaseSearchDatabases,
			Criticality:       Critical,
			MaxRetries:        3,
			InitialBackoff:    5 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        60 * time.Second,
		},
		PhaseDeduplication: {
			Name:              PhaseDeduplication,
			Criticality:       Critical,
			MaxRetries:        2,
			InitialBackoff:    2 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        30 * time.Second,
		},
		PhaseTitleAbstract: {
			Name:              PhaseTitleAbstract,
			Criticality:       Critical,
			MaxRetries:        3,
			InitialBackoff:    5 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        60 * time.Second,
		},
		PhaseFullText: {
			Name:              PhaseFullText,
			Criticality:       Critical,
			MaxRetries:        3,
			InitialBackoff:    5 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        60 * time.Second,
		},
		PhaseDataExtraction: {
			Name:              PhaseDataExtraction,
			Criticality:       Critical,
			MaxRetries:        3,
			InitialBackoff:    5 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        60 * time.Second,
		},
		PhaseQualityAssess: {
			Name:              PhaseQualityAssess,
			Criticality:       Critical,
			MaxRetries:        2,
			InitialBackoff:    5 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        30 * time.Second,
			Group:             analysisParallelGroup,
		},
		PhasePRISMADiagram: {
			Name:              PhasePRISMADiagram,
			Criticality:       NonCritical,
			MaxRetries:        1,
			InitialBackoff:    2 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        30 * time.Second,
			Group:             analysisParallelGroup,
		},
		PhaseVisualizations: {
			Name:              PhaseVisualizations,
			Criticality:       NonCritical,
			MaxRetries:        1,
			InitialBackoff:    2 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        30 * time.Second,
			Group:             analysisParallelGroup,
		},
		PhaseManuscript: {
			Name:              PhaseManuscript,
			Criticality:       Critical,
			MaxRetries:        2,
			InitialBackoff:    10 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        60 * time.Second,
		},
		PhaseReportAssembly: {
			Name:              PhaseReportAssembly,
			Criticality:       Critical,
			MaxRetries:        2,
			InitialBackoff:    2 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        30 * time.Second,
		},
	}
}

// DefaultRegistry builds the standard phase DAG. Quality assessment, the
// PRISMA diagram, and visualizations share a parallel group: they all
// depend on data extraction but not on each other. Within that group only
// quality assessment is critical; a review without quality appraisal is
// not publishable, while a missing diagram or chart set only degrades the
// report.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register(PhaseSearchDatabases, nil, true, ""))
	must(r.Register(PhaseDeduplication, []string{PhaseSearchDatabases}, true, ""))
	must(r.Register(PhaseTitleAbstract, []string{PhaseDeduplication}, true, ""))
	must(r.Register(PhaseFullText, []string{PhaseTitleAbstract}, true, ""))
	must(r.Register(PhaseDataExtraction, []string{PhaseFullText}, true, ""))
	must(r.Register(PhaseQualityAssess, []string{PhaseDataExtraction}, true, analysisParallelGroup))
	must(r.Register(PhasePRISMADiagram, []string{PhaseDataExtraction}, false, analysisParallelGroup))
	must(r.Register(PhaseVisualizations, []string{PhaseDataExtraction}, false, analysisParallelGroup))
	must(r.Register(PhaseManuscript, []string{PhaseDataExtraction}, true, ""))
	must(r.Register(PhaseReportAssembly, []string{PhaseManuscript}, true, ""))
	return r
}

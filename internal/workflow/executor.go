package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/observability"
)

// PhaseResult contains the outcome of a phase execution.
type PhaseResult struct {
	// Failed is true when a critical phase has exhausted retries. The
	// workflow aborts with Err.
	Failed bool

	// Skipped is true when a non-critical phase has exhausted retries.
	// The workflow continues to the next phase with a nil phase output.
	Skipped bool

	// Err is the last error encountered. Non-nil when Failed or Skipped.
	Err error

	// Attempts is the total number of execution attempts (1 = succeeded on
	// first try).
	Attempts int
}

// sleep is a variable so tests can skip the retry backoff.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExecutePhase runs fn with phase-level retry logic. It classifies errors
// and determines the outcome based on the phase's criticality and retry
// budget. Cancellation is never retried: a cancelled context fails the
// phase immediately regardless of criticality.
func ExecutePhase(ctx context.Context, cfg PhaseConfig, obs *observability.Observer, fn func(ctx context.Context) error) PhaseResult {
	obs.Metrics.PhasesStarted.WithLabelValues(cfg.Name).Inc()
	start := time.Now()
	defer func() {
		obs.Metrics.PhaseDuration.WithLabelValues(cfg.Name).Observe(time.Since(start).Seconds())
	}()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		logger := observability.WithPhaseContext(obs.Logger, cfg.Name, attempt)
		if attempt > 0 {
			obs.Metrics.PhaseRetries.WithLabelValues(cfg.Name).Inc()
		}

		err := fn(ctx)
		if err == nil {
			obs.Metrics.PhasesCompleted.WithLabelValues(cfg.Name).Inc()
			return PhaseResult{Attempts: attempt + 1}
		}

		// Never retry cancelled work.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			obs.Metrics.PhasesFailed.WithLabelValues(cfg.Name).Inc()
			return PhaseResult{
				Failed:   true,
				Err:      fmt.Errorf("%s: cancelled: %w", cfg.Name, err),
				Attempts: attempt + 1,
			}
		}

		category := Classify(err)

		logger.Warn().
			Err(err).
			Int("max_attempts", cfg.MaxRetries+1).
			Str("error_category", category.String()).
			Msg("phase execution failed")

		if category == Permanent {
			return exhaustedResult(cfg, obs, fmt.Errorf("%s: permanent error: %w", cfg.Name, err), attempt+1)
		}

		if attempt < cfg.MaxRetries {
			backoff := cfg.backoffForAttempt(attempt)
			logger.Info().
				Dur("backoff", backoff).
				Msg("retrying phase after backoff")
			if sleepErr := sleep(ctx, backoff); sleepErr != nil {
				obs.Metrics.PhasesFailed.WithLabelValues(cfg.Name).Inc()
				return PhaseResult{
					Failed:   true,
					Err:      fmt.Errorf("%s: cancelled during retry backoff: %w", cfg.Name, sleepErr),
					Attempts: attempt + 1,
				}
			}
			continue
		}

		return exhaustedResult(cfg, obs, fmt.Errorf("%s: retries exhausted: %w", cfg.Name, err), attempt+1)
	}

	// Not reachable; the loop always returns.
	return PhaseResult{Failed: true, Err: fmt.Errorf("%s: unexpected retry loop exit", cfg.Name), Attempts: cfg.MaxRetries + 1}
}

// exhaustedResult maps an unrecoverable phase error onto the outcome
// dictated by the phase's criticality.
func exhaustedResult(cfg PhaseConfig, obs *observability.Observer, err error, attempts int) PhaseResult {
	if cfg.Criticality == Critical {
		obs.Metrics.PhasesFailed.WithLabelValues(cfg.Name).Inc()
		return PhaseResult{Failed: true, Err: err, Attempts: attempts}
	}
	obs.Metrics.PhasesSkipped.WithLabelValues(cfg.Name).Inc()
	return PhaseResult{Skipped: true, Err: err, Attempts: attempts}
}

// GroupError aggregates the critical failures of a parallel phase group.
type GroupError struct {
	Group  string
	Errors []error
}

// Error implements the error interface.
func (e *GroupError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("parallel group %q: %s", e.Group, strings.Join(msgs, "; "))
}

// Unwrap returns the aggregated errors for errors.Is / errors.As.
func (e *GroupError) Unwrap() []error {
	return e.Errors
}

// PhaseFunc is the body of a workflow phase.
type PhaseFunc func(ctx context.Context) error

// Orchestrator walks the registry's execution order, running each phase
// through ExecutePhase. Consecutive phases sharing a parallel group run
// concurrently; a critical failure inside a group cancels the group's
// context while the group's other phases either finish or observe the
// cancellation, and every critical failure is reported.
type Orchestrator struct {
	registry *Registry
	configs  map[string]PhaseConfig
	handlers map[string]PhaseFunc
	obs      *observability.Observer

	// AfterPhase, when set, runs after every finished phase (including
	// skipped ones) before the next phase starts. Checkpointing hooks in
	// here; an error aborts the workflow.
	AfterPhase func(phase string, result PhaseResult) error
}

// NewOrchestrator creates an Orchestrator over the given registry. Phases
// without an entry in configs fall back to a critical single-attempt
// configuration.
func NewOrchestrator(registry *Registry, configs map[string]PhaseConfig, obs *observability.Observer) *Orchestrator {
	if obs == nil {
		obs = observability.Nop()
	}
	return &Orchestrator{
		registry: registry,
		configs:  configs,
		handlers: make(map[string]PhaseFunc),
		obs:      obs,
	}
}

// Handle binds a phase name to its body. Binding an unregistered phase is
// an error; Run reports unbound registered phases.
func (o *Orchestrator) Handle(name string, fn PhaseFunc) error {
	if !contains(o.registry.ExecutionOrder(), name) {
		return &DependencyError{Phase: name, Message: "not registered"}
	}
	o.handlers[name] = fn
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (o *Orchestrator) configFor(name string) PhaseConfig {
	if cfg, ok := o.configs[name]; ok {
		cfg.Name = name
		return cfg
	}
	crit := Critical
	if !o.registry.IsCritical(name) {
		crit = NonCritical
	}
	return PhaseConfig{Name: name, Criticality: crit, MaxRetries: 0, InitialBackoff: time.Second, BackoffMultiplier: 2.0, MaxBackoff: time.Second, Group: o.registry.Group(name)}
}

// Run executes every phase not already in completed, in the registry's
// execution order. It returns on the first critical failure (or aggregate
// of critical failures within a parallel group), on cancellation, or when
// all phases have finished.
func (o *Orchestrator) Run(ctx context.Context, completed map[string]bool) error {
	if completed == nil {
		completed = make(map[string]bool)
	}

	order := o.registry.ExecutionOrder()
	for _, name := range order {
		if _, ok := o.handlers[name]; !ok {
			return &DependencyError{Phase: name, Message: "no handler bound"}
		}
	}

	i := 0
	for i < len(order) {
		name := order[i]
		if completed[name] {
			i++
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("workflow cancelled: %w", domain.ErrCancelled)
		}

		group := o.registry.Group(name)
		if group == "" {
			if err := o.runOne(ctx, name, completed); err != nil {
				return err
			}
			i++
			continue
		}

		// Gather the contiguous run of phases in the same group.
		batch := []string{name}
		j := i + 1
		for j < len(order) && o.registry.Group(order[j]) == group {
			if !completed[order[j]] {
				batch = append(batch, order[j])
			}
			j++
		}
		if err := o.runGroup(ctx, group, batch, completed); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// runOne executes a single sequential phase.
func (o *Orchestrator) runOne(ctx context.Context, name string, completed map[string]bool) error {
	result := ExecutePhase(ctx, o.configFor(name), o.obs, o.handlers[name])

	if result.Failed {
		return &domain.PhaseError{Phase: name, Critical: true, Cause: result.Err}
	}
	if result.Skipped {
		o.obs.Logger.Warn().Str("phase", name).Err(result.Err).Msg("non-critical phase skipped")
	}
	completed[name] = true
	if o.AfterPhase != nil {
		if err := o.AfterPhase(name, result); err != nil {
			return fmt.Errorf("after phase %s: %w", name, err)
		}
	}
	return nil
}

// runGroup executes a batch of phases concurrently. Only critical failures
// cancel the group's context; non-critical phases that fail are skipped
// without disturbing their siblings.
func (o *Orchestrator) runGroup(ctx context.Context, group string, batch []string, completed map[string]bool) error {
	g, gctx := errgroup.WithContext(ctx)

	results := make([]PhaseResult, len(batch))
	for idx, name := range batch {
		idx, name := idx, name
		g.Go(func() error {
			result := ExecutePhase(gctx, o.configFor(name), o.obs, o.handlers[name])
			results[idx] = result
			if result.Failed {
				return &domain.PhaseError{Phase: name, Critical: true, Cause: result.Err}
			}
			return nil
		})
	}

	groupErr := g.Wait()

	// Every phase that did not fail counts as finished, even when its
	// siblings brought the group down. Phases that failed only because the
	// group was cancelled are not reported as causes.
	var critical, cancelled []error
	for idx, name := range batch {
		result := results[idx]
		if result.Failed {
			pe := &domain.PhaseError{Phase: name, Critical: true, Cause: result.Err}
			if errors.Is(result.Err, context.Canceled) || errors.Is(result.Err, domain.ErrCancelled) {
				cancelled = append(cancelled, pe)
			} else {
				critical = append(critical, pe)
			}
			continue
		}
		if result.Skipped {
			o.obs.Logger.Warn().Str("phase", name).Err(result.Err).Msg("non-critical phase skipped")
		}
		completed[name] = true
		if o.AfterPhase != nil {
			if err := o.AfterPhase(name, result); err != nil {
				return fmt.Errorf("after phase %s: %w", name, err)
			}
		}
	}

	if len(critical) > 0 {
		if len(critical) == 1 {
			return critical[0]
		}
		return &GroupError{Group: group, Errors: critical}
	}
	if len(cancelled) > 0 {
		return cancelled[0]
	}
	return groupErr
}

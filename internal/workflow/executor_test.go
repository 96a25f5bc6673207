package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/observability"
)

// noBackoff replaces the retry sleep for the duration of a test.
func noBackoff(t *testing.T) {
	t.Helper()
	orig := sleep
	sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { sleep = orig })
}

func testPhaseConfig(criticality PhaseCriticality, maxRetries int) PhaseConfig {
	return PhaseConfig{
		Name:              "test_phase",
		Criticality:       criticality,
		MaxRetries:        maxRetries,
		InitialBackoff:    time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Millisecond,
	}
}

func TestExecutePhase_SucceedsFirstTry(t *testing.T) {
	result := ExecutePhase(context.Background(), testPhaseConfig(Critical, 3), observability.Nop(), func(context.Context) error {
		return nil
	})

	assert.False(t, result.Failed)
	assert.False(t, result.Skipped)
	assert.NoError(t, result.Err)
	assert.Equal(t, 1, result.Attempts)
}

func TestExecutePhase_RetriesTransientThenSucceeds(t *testing.T) {
	noBackoff(t)

	calls := 0
	result := ExecutePhase(context.Background(), testPhaseConfig(Critical, 3), observability.Nop(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	assert.False(t, result.Failed)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
}

func TestExecutePhase_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	result := ExecutePhase(context.Background(), testPhaseConfig(Critical, 3), observability.Nop(), func(context.Context) error {
		calls++
		return domain.ErrInvalidInput
	})

	assert.True(t, result.Failed)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, result.Err, domain.ErrInvalidInput)
}

func TestExecutePhase_CriticalExhaustedFails(t *testing.T) {
	noBackoff(t)

	result := ExecutePhase(context.Background(), testPhaseConfig(Critical, 2), observability.Nop(), func(context.Context) error {
		return errors.New("timeout")
	})

	assert.True(t, result.Failed)
	assert.False(t, result.Skipped)
	assert.Equal(t, 3, result.Attempts)
}

func TestExecutePhase_NonCriticalExhaustedSkips(t *testing.T) {
	noBackoff(t)

	result := ExecutePhase(context.Background(), testPhaseConfig(NonCritical, 1), observability.Nop(), func(context.Context) error {
		return errors.New("timeout")
	})

	assert.False(t, result.Failed)
	assert.True(t, result.Skipped)
	require.Error(t, result.Err)
	assert.Equal(t, 2, result.Attempts)
}

func TestExecutePhase_CancellationFailsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	result := ExecutePhase(ctx, testPhaseConfig(NonCritical, 5), observability.Nop(), func(context.Context) error {
		calls++
		cancel()
		return ctx.Err()
	})

	// Cancellation always fails, even for non-critical phases.
	assert.True(t, result.Failed)
	assert.Equal(t, 1, calls)
}

func newTestOrchestrator(t *testing.T, r *Registry) *Orchestrator {
	t.Helper()
	configs := make(map[string]PhaseConfig)
	for _, name := range r.ExecutionOrder() {
		crit := NonCritical
		if r.IsCritical(name) {
			crit = Critical
		}
		configs[name] = PhaseConfig{
			Name:              name,
			Criticality:       crit,
			MaxRetries:        0,
			InitialBackoff:    time.Millisecond,
			BackoffMultiplier: 2.0,
			MaxBackoff:        time.Millisecond,
			Group:             r.Group(name),
		}
	}
	return NewOrchestrator(r, configs, observability.Nop())
}

func TestOrchestrator_RunsInOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", nil, true, ""))
	require.NoError(t, r.Register("b", []string{"a"}, true, ""))
	require.NoError(t, r.Register("c", []string{"b"}, true, ""))

	o := newTestOrchestrator(t, r)

	var ran []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		require.NoError(t, o.Handle(name, func(context.Context) error {
			ran = append(ran, name)
			return nil
		}))
	}

	var checkpointed []string
	o.AfterPhase = func(phase string, result PhaseResult) error {
		assert.False(t, result.Failed)
		checkpointed = append(checkpointed, phase)
		return nil
	}

	require.NoError(t, o.Run(context.Background(), nil))
	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.Equal(t, []string{"a", "b", "c"}, checkpointed)
}

func TestOrchestrator_ResumeSkipsCompleted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", nil, true, ""))
	require.NoError(t, r.Register("b", []string{"a"}, true, ""))

	o := newTestOrchestrator(t, r)

	var ran []string
	for _, name := range []string{"a", "b"} {
		name := name
		require.NoError(t, o.Handle(name, func(context.Context) error {
			ran = append(ran, name)
			return nil
		}))
	}

	require.NoError(t, o.Run(context.Background(), map[string]bool{"a": true}))
	assert.Equal(t, []string{"b"}, ran)
}

func TestOrchestrator_CriticalFailureAborts(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", nil, true, ""))
	require.NoError(t, r.Register("b", []string{"a"}, true, ""))

	o := newTestOrchestrator(t, r)
	require.NoError(t, o.Handle("a", func(context.Context) error { return domain.ErrInvalidInput }))

	bRan := false
	require.NoError(t, o.Handle("b", func(context.Context) error { bRan = true; return nil }))

	err := o.Run(context.Background(), nil)
	var phaseErr *domain.PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, "a", phaseErr.Phase)
	assert.True(t, phaseErr.Critical)
	assert.False(t, bRan)
}

func TestOrchestrator_NonCriticalFailureContinues(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", nil, false, ""))
	require.NoError(t, r.Register("b", []string{"a"}, true, ""))

	o := newTestOrchestrator(t, r)
	require.NoError(t, o.Handle("a", func(context.Context) error { return domain.ErrInvalidInput }))

	bRan := false
	require.NoError(t, o.Handle("b", func(context.Context) error { bRan = true; return nil }))

	var skipped []string
	o.AfterPhase = func(phase string, result PhaseResult) error {
		if result.Skipped {
			skipped = append(skipped, phase)
		}
		return nil
	}

	require.NoError(t, o.Run(context.Background(), nil))
	assert.True(t, bRan)
	assert.Equal(t, []string{"a"}, skipped)
}

func TestOrchestrator_ParallelGroupRunsConcurrently(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("base", nil, true, ""))
	require.NoError(t, r.Register("p1", []string{"base"}, false, "g"))
	require.NoError(t, r.Register("p2", []string{"base"}, false, "g"))
	require.NoError(t, r.Register("p3", []string{"base"}, false, "g"))
	require.NoError(t, r.Register("after", []string{"base"}, true, ""))

	o := newTestOrchestrator(t, r)
	require.NoError(t, o.Handle("base", func(context.Context) error { return nil }))
	require.NoError(t, o.Handle("after", func(context.Context) error { return nil }))

	// All three group members must be in flight at once before any returns.
	var wg sync.WaitGroup
	wg.Add(3)
	for _, name := range []string{"p1", "p2", "p3"} {
		require.NoError(t, o.Handle(name, func(ctx context.Context) error {
			wg.Done()
			done := make(chan struct{})
			go func() { wg.Wait(); close(done) }()
			select {
			case <-done:
				return nil
			case <-time.After(5 * time.Second):
				return errors.New("group members did not overlap")
			}
		}))
	}

	require.NoError(t, o.Run(context.Background(), nil))
}

func TestOrchestrator_GroupNonCriticalFailureSparesSiblings(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("p1", nil, false, "g"))
	require.NoError(t, r.Register("p2", nil, false, "g"))
	require.NoError(t, r.Register("tail", nil, true, ""))

	o := newTestOrchestrator(t, r)
	require.NoError(t, o.Handle("p1", func(context.Context) error { return domain.ErrInvalidInput }))

	var p2Ran, tailRan atomic.Bool
	require.NoError(t, o.Handle("p2", func(context.Context) error { p2Ran.Store(true); return nil }))
	require.NoError(t, o.Handle("tail", func(context.Context) error { tailRan.Store(true); return nil }))

	completed := make(map[string]bool)
	require.NoError(t, o.Run(context.Background(), completed))

	assert.True(t, p2Ran.Load())
	assert.True(t, tailRan.Load())
	// The failed-but-skipped phase still counts as finished.
	assert.True(t, completed["p1"])
	assert.True(t, completed["p2"])
}

func TestOrchestrator_GroupCriticalFailureCancelsSiblings(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("fail", nil, true, "g"))
	require.NoError(t, r.Register("slow", nil, false, "g"))
	require.NoError(t, r.Register("tail", nil, true, ""))

	o := newTestOrchestrator(t, r)
	require.NoError(t, o.Handle("fail", func(context.Context) error { return domain.ErrInvalidInput }))

	sawCancel := make(chan struct{}, 1)
	require.NoError(t, o.Handle("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			sawCancel <- struct{}{}
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}))

	tailRan := false
	require.NoError(t, o.Handle("tail", func(context.Context) error { tailRan = true; return nil }))

	err := o.Run(context.Background(), nil)
	var phaseErr *domain.PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, "fail", phaseErr.Phase)
	assert.False(t, tailRan)

	select {
	case <-sawCancel:
	default:
		t.Fatal("sibling did not observe group cancellation")
	}
}

func TestOrchestrator_QualityFailureAbortsDefaultWorkflow(t *testing.T) {
	noBackoff(t)

	o := NewOrchestrator(DefaultRegistry(), DefaultPhaseConfigs(), observability.Nop())

	for _, name := range DefaultRegistry().ExecutionOrder() {
		require.NoError(t, o.Handle(name, func(context.Context) error { return nil }))
	}
	require.NoError(t, o.Handle(PhaseQualityAssess, func(context.Context) error {
		return domain.ErrInvalidInput
	}))

	var manuscriptRan atomic.Bool
	require.NoError(t, o.Handle(PhaseManuscript, func(context.Context) error {
		manuscriptRan.Store(true)
		return nil
	}))

	err := o.Run(context.Background(), nil)
	var phaseErr *domain.PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, PhaseQualityAssess, phaseErr.Phase)
	assert.True(t, phaseErr.Critical)
	assert.False(t, manuscriptRan.Load(), "workflow must not draft a manuscript without quality appraisal")
}

func TestOrchestrator_UnboundHandlerRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", nil, true, ""))

	o := newTestOrchestrator(t, r)
	err := o.Run(context.Background(), nil)
	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "a", depErr.Phase)

	require.Error(t, o.Handle("unknown", func(context.Context) error { return nil }))
}

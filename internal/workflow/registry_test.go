package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("search", nil, true, ""))
	require.NoError(t, r.Register("dedup", []string{"search"}, true, ""))

	t.Run("unknown dependency", func(t *testing.T) {
		err := r.Register("screen", []string{"missing"}, true, "")
		var depErr *DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, "screen", depErr.Phase)
	})

	t.Run("duplicate phase", func(t *testing.T) {
		err := r.Register("search", nil, true, "")
		require.Error(t, err)
	})

	t.Run("self dependency", func(t *testing.T) {
		err := r.Register("loop", []string{"loop"}, true, "")
		require.Error(t, err)
	})

	t.Run("empty name", func(t *testing.T) {
		require.Error(t, r.Register("", nil, true, ""))
	})
}

func TestRegistry_ExecutionOrderIsDeclarationOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", nil, true, ""))
	require.NoError(t, r.Register("b", []string{"a"}, true, ""))
	require.NoError(t, r.Register("c", []string{"a"}, false, "g"))
	require.NoError(t, r.Register("d", []string{"b", "c"}, true, ""))

	order := r.ExecutionOrder()
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)

	// Every dependency precedes its dependent.
	index := make(map[string]int)
	for i, name := range order {
		index[name] = i
	}
	for _, name := range order {
		for _, dep := range r.Dependencies(name) {
			assert.Less(t, index[dep], index[name], "%s must run before %s", dep, name)
		}
	}
}

func TestRegistry_NextPhase(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", nil, true, ""))
	require.NoError(t, r.Register("b", []string{"a"}, true, ""))
	require.NoError(t, r.Register("c", []string{"b"}, true, ""))

	next, ok := r.NextPhase(nil)
	require.True(t, ok)
	assert.Equal(t, "a", next)

	next, ok = r.NextPhase(map[string]bool{"a": true})
	require.True(t, ok)
	assert.Equal(t, "b", next)

	_, ok = r.NextPhase(map[string]bool{"a": true, "b": true, "c": true})
	assert.False(t, ok)
}

func TestRegistry_CompletedThrough(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", nil, true, ""))
	require.NoError(t, r.Register("b", []string{"a"}, true, ""))
	require.NoError(t, r.Register("c", []string{"b"}, true, ""))

	completed := r.CompletedThrough("b")
	assert.True(t, completed["a"])
	assert.True(t, completed["b"])
	assert.False(t, completed["c"])

	// An unknown checkpoint phase restarts from scratch.
	assert.Empty(t, r.CompletedThrough("nonsense"))
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Empty(t, r.ValidateDependencies())

	order := r.ExecutionOrder()
	assert.Equal(t, []string{
		PhaseSearchDatabases,
		PhaseDeduplication,
		PhaseTitleAbstract,
		PhaseFullText,
		PhaseDataExtraction,
		PhaseQualityAssess,
		PhasePRISMADiagram,
		PhaseVisualizations,
		PhaseManuscript,
		PhaseReportAssembly,
	}, order)

	// The analysis phases share a parallel group; everything else is sequential.
	assert.Equal(t, r.Group(PhaseQualityAssess), r.Group(PhasePRISMADiagram))
	assert.Equal(t, r.Group(PhaseQualityAssess), r.Group(PhaseVisualizations))
	assert.NotEmpty(t, r.Group(PhaseQualityAssess))
	assert.Empty(t, r.Group(PhaseManuscript))

	assert.True(t, r.IsCritical(PhaseSearchDatabases))
	assert.True(t, r.IsCritical(PhaseQualityAssess))
	assert.False(t, r.IsCritical(PhasePRISMADiagram))
	assert.False(t, r.IsCritical(PhaseVisualizations))
}

func TestDefaultPhaseConfigs_CoverEveryPhase(t *testing.T) {
	configs := DefaultPhaseConfigs()
	for _, name := range DefaultRegistry().ExecutionOrder() {
		cfg, ok := configs[name]
		require.True(t, ok, "missing config for %s", name)
		assert.Equal(t, name, cfg.Name)
		assert.Greater(t, cfg.BackoffMultiplier, 1.0)
	}

	// Config criticality must agree with the registry for the analysis group.
	r := DefaultRegistry()
	assert.Equal(t, Critical, configs[PhaseQualityAssess].Criticality)
	assert.True(t, r.IsCritical(PhaseQualityAssess))
	assert.Equal(t, NonCritical, configs[PhasePRISMADiagram].Criticality)
	assert.Equal(t, NonCritical, configs[PhaseVisualizations].Criticality)
}

func TestBackoffForAttempt(t *testing.T) {
	cfg := PhaseConfig{
		InitialBackoff:    1e9, // 1s
		BackoffMultiplier: 2.0,
		MaxBackoff:        5e9, // 5s
	}

	assert.Equal(t, int64(1e9), int64(cfg.backoffForAttempt(0)))
	assert.Equal(t, int64(2e9), int64(cfg.backoffForAttempt(1)))
	assert.Equal(t, int64(4e9), int64(cfg.backoffForAttempt(2)))
	// Capped.
	assert.Equal(t, int64(5e9), int64(cfg.backoffForAttempt(3)))
	assert.Equal(t, int64(5e9), int64(cfg.backoffForAttempt(10)))
}

package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPRISMACounts_SetAndGet(t *testing.T) {
	var p PRISMACounts

	assert.Equal(t, -1, p.Get(PRISMAFound))

	require.NoError(t, p.Set(PRISMAFound, 100))
	assert.Equal(t, 100, p.Get(PRISMAFound))

	// Re-setting the same value is idempotent.
	require.NoError(t, p.Set(PRISMAFound, 100))

	// Changing an already-set count is refused.
	err := p.Set(PRISMAFound, 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already set")
}

func TestPRISMACounts_UnknownStage(t *testing.T) {
	var p PRISMACounts
	require.Error(t, p.Set("bogus", 1))
	assert.Equal(t, -1, p.Get("bogus"))
}

func TestPRISMACounts_NegativeCount(t *testing.T) {
	var p PRISMACounts
	require.Error(t, p.Set(PRISMAScreened, -1))
}

func TestPRISMACounts_FunnelNarrows(t *testing.T) {
	var p PRISMACounts

	require.NoError(t, p.Set(PRISMAFound, 100))
	require.NoError(t, p.Set(PRISMADuplicatesRemoved, 10))
	require.NoError(t, p.Set(PRISMANoDupes, 90))
	require.NoError(t, p.Set(PRISMAScreened, 40))
	require.NoError(t, p.Set(PRISMAFullTextAssessed, 20))
	require.NoError(t, p.Set(PRISMAIncluded, 12))

	assert.Equal(t, 90, p.Get(PRISMANoDupes))
	assert.Equal(t, 10, p.Get(PRISMADuplicatesRemoved))
}

func TestPRISMACounts_FunnelCannotWiden(t *testing.T) {
	var p PRISMACounts

	require.NoError(t, p.Set(PRISMAFound, 50))
	err := p.Set(PRISMANoDupes, 60)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestPRISMACounts_OuterStageBelowInner(t *testing.T) {
	var p PRISMACounts

	// Inner stage recorded first (out-of-order phase completion).
	require.NoError(t, p.Set(PRISMAIncluded, 30))
	err := p.Set(PRISMAScreened, 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below")
}

func TestPRISMACounts_DeltaNotPartOfFunnel(t *testing.T) {
	var p PRISMACounts

	require.NoError(t, p.Set(PRISMAFound, 5))
	// duplicates_removed may legitimately exceed inner funnel counts;
	// it is a delta, not a funnel stage.
	require.NoError(t, p.Set(PRISMADuplicatesRemoved, 4))
}

func TestPRISMACounts_JSONRoundTrip(t *testing.T) {
	var p PRISMACounts
	require.NoError(t, p.Set(PRISMAFound, 100))
	require.NoError(t, p.Set(PRISMANoDupes, 90))

	data, err := json.Marshal(&p)
	require.NoError(t, err)

	var back PRISMACounts
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, 100, back.Get(PRISMAFound))
	assert.Equal(t, 90, back.Get(PRISMANoDupes))
	// Unset stages survive as unset, not zero.
	assert.Equal(t, -1, back.Get(PRISMAIncluded))
}

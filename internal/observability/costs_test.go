package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCostTracker_Record(t *testing.T) {
	tracker := NewCostTrackerWithPricing(map[string]map[string]ModelPricing{
		"openai": {
			"gpt-4o": {InputPerMTok: 2.0, OutputPerMTok: 10.0},
		},
	})

	tracker.Record("screener", "openai", "gpt-4o", 1_000_000, 100_000)

	costs := tracker.ByAgent()
	assert.Len(t, costs, 1)
	assert.Equal(t, "screener", costs[0].Agent)
	assert.Equal(t, int64(1), costs[0].Calls)
	assert.Equal(t, int64(1_000_000), costs[0].InputTokens)
	assert.Equal(t, int64(100_000), costs[0].OutputTokens)
	assert.InDelta(t, 2.0+1.0, costs[0].USD, 1e-9)
	assert.InDelta(t, 3.0, tracker.TotalUSD(), 1e-9)
}

func TestCostTracker_UnknownModelCostsZero(t *testing.T) {
	tracker := NewCostTracker()
	tracker.Record("writer", "openai", "some-unlisted-model", 500, 500)

	costs := tracker.ByAgent()
	assert.Len(t, costs, 1)
	assert.Equal(t, int64(500), costs[0].InputTokens)
	assert.Equal(t, 0.0, costs[0].USD)
}

func TestCostTracker_ConcurrentRecords(t *testing.T) {
	tracker := NewCostTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Record("screener", "openai", "gpt-4o", 10, 5)
		}()
	}
	wg.Wait()

	costs := tracker.ByAgent()
	assert.Len(t, costs, 1)
	// No lost updates under concurrent completion.
	assert.Equal(t, int64(50), costs[0].Calls)
	assert.Equal(t, int64(500), costs[0].InputTokens)
	assert.Equal(t, int64(250), costs[0].OutputTokens)
}

func TestCostTracker_ByAgentSorted(t *testing.T) {
	tracker := NewCostTracker()
	tracker.Record("writer", "openai", "gpt-4o", 1, 1)
	tracker.Record("extractor", "openai", "gpt-4o", 1, 1)
	tracker.Record("screener", "openai", "gpt-4o", 1, 1)

	costs := tracker.ByAgent()
	assert.Equal(t, []string{"extractor", "screener", "writer"},
		[]string{costs[0].Agent, costs[1].Agent, costs[2].Agent})
}

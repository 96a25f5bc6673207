package observability

import (
	"sort"
	"sync"
)

// ModelPricing holds the USD cost per million tokens for one model.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// defaultPricing is the built-in provider/model pricing table, USD per
// million tokens. Unknown models fall back to the provider's zero entry
// (cost recorded as tokens only).
var defaultPricing = map[string]map[string]ModelPricing{
	"openai": {
		"gpt-4o":      {InputPerMTok: 2.50, OutputPerMTok: 10.00},
		"gpt-4o-mini": {InputPerMTok: 0.15, OutputPerMTok: 0.60},
		"gpt-4-turbo": {InputPerMTok: 10.00, OutputPerMTok: 30.00},
	},
	"anthropic": {
		"claude-3-5-sonnet-20241022": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
		"claude-3-5-haiku-20241022":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
		"claude-3-haiku-20240307":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},
	},
}

// AgentCost is the accumulated spend for one agent.
type AgentCost struct {
	Agent        string  `json:"agent"`
	Calls        int64   `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	USD          float64 `json:"usd"`
}

// CostTracker aggregates LLM token usage and converts it to USD using a
// provider/model pricing table. It is the single aggregation point for a
// run and is safe for concurrent use.
type CostTracker struct {
	mu      sync.Mutex
	pricing map[string]map[string]ModelPricing
	byAgent map[string]*AgentCost
}

// NewCostTracker creates a CostTracker with the built-in pricing table.
func NewCostTracker() *CostTracker {
	return NewCostTrackerWithPricing(defaultPricing)
}

// NewCostTrackerWithPricing creates a CostTracker with a custom pricing
// table (USD per million tokens, keyed by provider then model).
func NewCostTrackerWithPricing(pricing map[string]map[string]ModelPricing) *CostTracker {
	return &CostTracker{
		pricing: pricing,
		byAgent: make(map[string]*AgentCost),
	}
}

// Record adds one successful call's token usage for the named agent.
func (t *CostTracker) Record(agent, provider, model string, inputTokens, outputTokens int) {
	var price ModelPricing
	if models, ok := t.pricing[provider]; ok {
		price = models[model]
	}
	usd := float64(inputTokens)*price.InputPerMTok/1e6 +
		float64(outputTokens)*price.OutputPerMTok/1e6

	t.mu.Lock()
	defer t.mu.Unlock()

	cost, ok := t.byAgent[agent]
	if !ok {
		cost = &AgentCost{Agent: agent}
		t.byAgent[agent] = cost
	}
	cost.Calls++
	cost.InputTokens += int64(inputTokens)
	cost.OutputTokens += int64(outputTokens)
	cost.USD += usd
}

// ByAgent returns a snapshot of per-agent costs, sorted by agent name.
func (t *CostTracker) ByAgent() []AgentCost {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]AgentCost, 0, len(t.byAgent))
	for _, c := range t.byAgent {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}

// TotalUSD returns the total spend across all agents.
func (t *CostTracker) TotalUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total float64
	for _, c := range t.byAgent {
		total += c.USD
	}
	return total
}

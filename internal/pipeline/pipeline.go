// Package pipeline wires the systematic review workflow end to end:
// sources, deduplication, screening, extraction, analysis, writing, and
// checkpointing, driven by the workflow orchestrator.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/reviewkit/reviewkit/internal/analysis"
	"github.com/reviewkit/reviewkit/internal/checkpoint"
	"github.com/reviewkit/reviewkit/internal/config"
	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/extraction"
	"github.com/reviewkit/reviewkit/internal/fulltext"
	"github.com/reviewkit/reviewkit/internal/llm"
	"github.com/reviewkit/reviewkit/internal/observability"
	"github.com/reviewkit/reviewkit/internal/papersources"
	"github.com/reviewkit/reviewkit/internal/papersources/arxiv"
	"github.com/reviewkit/reviewkit/internal/papersources/openalex"
	"github.com/reviewkit/reviewkit/internal/papersources/pubmed"
	"github.com/reviewkit/reviewkit/internal/screening"
	"github.com/reviewkit/reviewkit/internal/workflow"
	"github.com/reviewkit/reviewkit/internal/writing"
)

// Agent names used for metrics, cost accounting, and per-agent config
// overrides.
const (
	agentScreener  = "screener"
	agentExtractor = "extractor"
	agentQuality   = "quality"
	agentWriter    = "writer"
)

// Pipeline owns every component of one review run.
type Pipeline struct {
	cfg      *config.Config
	obs      *observability.Observer
	registry *workflow.Registry

	sources   *papersources.Registry
	fetcher   *fulltext.Fetcher
	screener  *screening.Screener
	extractor *extraction.Extractor
	quality   *analysis.QualityAssessor
	writer    *writing.Writer

	ckpt  *checkpoint.Manager
	queue *screening.AdjudicationQueue
	state *state
}

// New builds a Pipeline from validated configuration. Provider
// construction fails fast on unknown provider names.
func New(cfg *config.Config, obs *observability.Observer) (*Pipeline, error) {
	if obs == nil {
		obs = observability.Nop()
	}

	p := &Pipeline{
		cfg:      cfg,
		obs:      obs,
		registry: workflow.DefaultRegistry(),
		sources:  papersources.NewRegistry(),
		fetcher:  fulltext.NewFetcher(fulltext.Config{}, nil),
		queue:    screening.NewAdjudicationQueue(),
		state:    newState(cfg.Topic.Context()),
	}

	p.registerSources()

	breakers := llm.NewBreakerRegistry(llm.CircuitBreakerConfig{
		ConsecutiveThreshold: cfg.LLM.Resilience.BreakerThreshold,
		Cooldown:             cfg.LLM.Resilience.BreakerCooldown,
	}, nil)
	limiters := make(map[string]*rate.Limiter)

	screenerCaller, err := p.buildCaller(agentScreener, breakers, limiters)
	if err != nil {
		return nil, err
	}
	extractorCaller, err := p.buildCaller(agentExtractor, breakers, limiters)
	if err != nil {
		return nil, err
	}
	qualityCaller, err := p.buildCaller(agentQuality, breakers, limiters)
	if err != nil {
		return nil, err
	}
	writerCaller, err := p.buildCaller(agentWriter, breakers, limiters)
	if err != nil {
		return nil, err
	}

	p.screener = screening.NewScreener(screenerCaller, screening.Config{
		Prefilter: screening.PrefilterConfig{
			InclusionConcepts: cfg.Screening.InclusionConcepts,
			ExclusionConcepts: cfg.Screening.ExclusionConcepts,
			IncludeThreshold:  cfg.Screening.IncludeThreshold,
			ExcludeThreshold:  cfg.Screening.ExcludeThreshold,
		},
		Criteria: screening.Criteria{
			Inclusion: cfg.Criteria.Inclusion,
			Exclusion: cfg.Criteria.Exclusion,
		},
		Concurrency: cfg.Workflow.Concurrency,
	}, obs)
	p.extractor = extraction.NewExtractor(extractorCaller, extraction.Config{
		Concurrency: cfg.Workflow.Concurrency,
	}, obs)
	p.quality = analysis.NewQualityAssessor(qualityCaller, analysis.QualityConfig{
		Concurrency: cfg.Workflow.Concurrency,
	}, obs)
	p.writer = writing.NewWriter(writerCaller, obs)

	return p, nil
}

// registerSources registers the three paper source clients. Sources the
// config does not name stay registered but disabled, so the registry
// layout is stable regardless of configuration.
func (p *Pipeline) registerSources() {
	enabled := make(map[string]bool, len(p.cfg.Workflow.Databases))
	for _, db := range p.cfg.Workflow.Databases {
		enabled[strings.ToLower(db)] = true
	}
	maxResults := p.cfg.Workflow.MaxResults

	p.sources.Register(arxiv.New(arxiv.Config{
		MaxResults: maxResults,
		Enabled:    enabled[string(domain.SourceTypeArXiv)],
	}))
	p.sources.Register(pubmed.New(pubmed.Config{
		MaxResults: maxResults,
		Enabled:    enabled[string(domain.SourceTypePubMed)],
	}))
	p.sources.Register(openalex.New(openalex.Config{
		MaxResults: maxResults,
		Enabled:    enabled[string(domain.SourceTypeOpenAlex)],
	}))
}

// buildCaller constructs the resilience-wrapped caller for one agent.
// Agents may override the default provider and model; rate limiters are
// shared per provider so concurrent agents honor one budget.
func (p *Pipeline) buildCaller(agent string, breakers *llm.BreakerRegistry, limiters map[string]*rate.Limiter) (*llm.Caller, error) {
	cfg := p.cfg.LLM
	agentCfg := p.cfg.Agents[agent]

	providerName := strings.ToLower(cfg.Provider)
	if agentCfg.Provider != "" {
		providerName = strings.ToLower(agentCfg.Provider)
	}

	temperature := cfg.Temperature
	if agentCfg.Temperature > 0 {
		temperature = agentCfg.Temperature
	}

	openAI := llm.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
	}
	anthropic := llm.AnthropicConfig{
		APIKey:  cfg.Anthropic.APIKey,
		Model:   cfg.Anthropic.Model,
		BaseURL: cfg.Anthropic.BaseURL,
	}
	if agentCfg.Model != "" {
		openAI.Model = agentCfg.Model
		anthropic.Model = agentCfg.Model
	}

	provider, err := llm.NewProvider(llm.FactoryConfig{
		Provider:    providerName,
		Temperature: temperature,
		Timeout:     cfg.Timeout,
		OpenAI:      openAI,
		Anthropic:   anthropic,
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", agent, err)
	}

	limiter, ok := limiters[providerName]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(cfg.Resilience.RateLimitRPS), cfg.Resilience.RateLimitBurst)
		limiters[providerName] = limiter
	}

	return llm.NewCaller(provider, llm.CallerConfig{
		Agent:       agent,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		CallTimeout: cfg.Timeout,
	}, breakers.Get(agent+":"+providerName), limiter, p.obs), nil
}

// Run executes the full workflow in a fresh checkpoint directory.
func (p *Pipeline) Run(ctx context.Context) error {
	m, err := checkpoint.NewManager(p.cfg.Workflow.CheckpointDir, p.state.tc, p.obs.Logger)
	if err != nil {
		return err
	}
	p.ckpt = m
	return p.run(ctx, nil)
}

// ResumeOptions selects the workflow to resume.
type ResumeOptions struct {
	// WorkflowDir names the checkpoint directory. When empty, the most
	// recent directory matching Topic is used.
	WorkflowDir string
	// Topic locates the workflow when WorkflowDir is empty.
	Topic string
	// FromPhase forces re-execution from the named phase onward even when
	// later checkpoints exist.
	FromPhase string
}

// Resume restores state from an existing checkpoint directory and
// continues from the first incomplete phase.
func (p *Pipeline) Resume(ctx context.Context, opts ResumeOptions) error {
	dir := opts.WorkflowDir
	if dir == "" {
		topic := opts.Topic
		if topic == "" {
			topic = p.cfg.Topic.Name
		}
		dir = checkpoint.FindByTopic(p.cfg.Workflow.CheckpointDir, topic)
		if dir == "" {
			return fmt.Errorf("no workflow found for topic %q", topic)
		}
	}

	m, err := checkpoint.Open(p.cfg.Workflow.CheckpointDir, dir, p.obs.Logger)
	if err != nil {
		return fmt.Errorf("open workflow %s: %w", dir, err)
	}
	p.ckpt = m

	completed := m.CompletedPhases()
	if opts.FromPhase != "" {
		completed = truncateCompleted(p.registry, completed, opts.FromPhase)
	}

	p.restoreState(completed)

	p.obs.Logger.Info().
		Str("workflow_id", m.WorkflowID()).
		Int("completed_phases", len(completed)).
		Msg("resuming workflow")
	return p.run(ctx, completed)
}

// truncateCompleted drops fromPhase and everything after it in execution
// order, forcing those phases to re-run.
func truncateCompleted(registry *workflow.Registry, completed map[string]bool, fromPhase string) map[string]bool {
	out := make(map[string]bool, len(completed))
	for _, name := range registry.ExecutionOrder() {
		if name == fromPhase {
			break
		}
		if completed[name] {
			out[name] = true
		}
	}
	return out
}

func (p *Pipeline) run(ctx context.Context, completed map[string]bool) error {
	logger := observability.WithWorkflowContext(p.obs.Logger, p.ckpt.WorkflowID(), p.state.tc.Topic)

	orch := workflow.NewOrchestrator(p.registry, workflow.DefaultPhaseConfigs(), p.obs)
	orch.AfterPhase = p.afterPhase
	if err := p.bindHandlers(orch); err != nil {
		return err
	}

	if err := orch.Run(ctx, completed); err != nil {
		logger.Error().Err(err).Msg("workflow failed")
		return err
	}

	logger.Info().
		Float64("llm_cost_usd", p.obs.Costs.TotalUSD()).
		Str("checkpoint_dir", p.ckpt.Dir()).
		Msg("workflow complete")
	return nil
}

// afterPhase persists the finished phase's output. Skipped non-critical
// phases checkpoint a null payload so resume does not re-run them.
func (p *Pipeline) afterPhase(phase string, result workflow.PhaseResult) error {
	var data any
	if !result.Skipped {
		data = p.payloadFor(phase)
	}
	_, err := p.ckpt.SavePhase(phase, p.state.tc, data, p.registry.Dependencies(phase), p.state.prisma)
	return err
}

package screening

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/llm"
	"github.com/reviewkit/reviewkit/internal/observability"
)

// noTextConfidence is the confidence assigned when a paper carries neither a
// title nor an abstract and cannot be screened at all.
const noTextConfidence = 0.3

// degradedConfidenceFactor scales a title/abstract confidence down when
// full-text screening falls back on it because the document text could not
// be retrieved.
const degradedConfidenceFactor = 0.6

// degradedIncludeFloor is the confidence below which a degraded include
// verdict is routed to the uncertain queue instead of being auto-included.
const degradedIncludeFloor = 0.5

// Criteria holds the free-text inclusion and exclusion criteria sent to the
// LLM stage.
type Criteria struct {
	Inclusion []string
	Exclusion []string
}

// Config holds the screening pipeline configuration.
type Config struct {
	Prefilter PrefilterConfig
	Criteria  Criteria

	// Concurrency bounds how many papers are screened at once.
	Concurrency int
}

// FullTextProvider retrieves the document text for full-text screening.
// Implementations return an error or empty text when the document could not
// be fetched; screening then degrades instead of failing.
type FullTextProvider interface {
	FullText(ctx context.Context, paper *domain.Paper) (string, error)
}

// StageOutcome aggregates the results of one screening stage.
type StageOutcome struct {
	Stage    domain.ScreeningStage
	Results  []domain.ScreeningResult
	Included []*domain.Paper

	ExcludedCount  int
	UncertainCount int
}

// Screener runs the two-stage screening pipeline over a set of papers.
type Screener struct {
	caller    *llm.Caller
	prefilter *Prefilter
	cfg       Config
	obs       *observability.Observer
}

// NewScreener creates a Screener using the given caller for LLM-stage
// decisions.
func NewScreener(caller *llm.Caller, cfg Config, obs *observability.Observer) *Screener {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if obs == nil {
		obs = observability.Nop()
	}
	return &Screener{
		caller:    caller,
		prefilter: NewPrefilter(cfg.Prefilter),
		cfg:       cfg,
		obs:       obs,
	}
}

// ScreenTitleAbstract screens papers on title, abstract, and keywords.
// Papers are screened concurrently up to the configured bound; uncertain
// verdicts are appended to queue. The only error returned is context
// cancellation: individual screening failures surface as uncertain results.
func (s *Screener) ScreenTitleAbstract(ctx context.Context, papers []*domain.Paper, tc *domain.TopicContext, queue *AdjudicationQueue) (*StageOutcome, error) {
	return s.runStage(ctx, domain.StageTitleAbstract, papers, queue, func(ctx context.Context, paper *domain.Paper) domain.ScreeningResult {
		return s.screenTitleAbstract(ctx, paper, tc)
	})
}

// ScreenFullText screens papers on retrieved document text. When the text
// cannot be retrieved the title/abstract result for that paper is reused in
// degraded mode. prior maps paper IDs to their title/abstract results.
func (s *Screener) ScreenFullText(ctx context.Context, papers []*domain.Paper, tc *domain.TopicContext, texts FullTextProvider, prior map[string]domain.ScreeningResult, queue *AdjudicationQueue) (*StageOutcome, error) {
	return s.runStage(ctx, domain.StageFullText, papers, queue, func(ctx context.Context, paper *domain.Paper) domain.ScreeningResult {
		return s.screenFullText(ctx, paper, tc, texts, prior)
	})
}

// runStage fans papers out to fn with bounded concurrency and collects
// results under a mutex.
func (s *Screener) runStage(ctx context.Context, stage domain.ScreeningStage, papers []*domain.Paper, queue *AdjudicationQueue, fn func(context.Context, *domain.Paper) domain.ScreeningResult) (*StageOutcome, error) {
	outcome := &StageOutcome{Stage: stage}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, paper := range papers {
		paper := paper
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			result := fn(gctx, paper)
			s.obs.Metrics.ScreeningDecisions.WithLabelValues(string(stage), string(result.Decision)).Inc()

			mu.Lock()
			outcome.Results = append(outcome.Results, result)
			switch result.Decision {
			case domain.DecisionInclude:
				outcome.Included = append(outcome.Included, paper)
			case domain.DecisionExclude:
				outcome.ExcludedCount++
			case domain.DecisionUncertain:
				outcome.UncertainCount++
			}
			mu.Unlock()

			if result.IsUncertain() && queue != nil {
				queue.Add(domain.AdjudicationItem{
					PaperID:    paper.ID,
					Title:      paper.Title,
					Stage:      stage,
					Decision:   result.Decision,
					Confidence: result.Confidence,
					Reasoning:  result.Reasoning,
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *Screener) screenTitleAbstract(ctx context.Context, paper *domain.Paper, tc *domain.TopicContext) domain.ScreeningResult {
	if strings.TrimSpace(paper.Title) == "" && strings.TrimSpace(paper.Abstract) == "" {
		return domain.ScreeningResult{
			PaperID:    paper.ID,
			Stage:      domain.StageTitleAbstract,
			Decision:   domain.DecisionUncertain,
			Confidence: noTextConfidence,
			Reasoning:  "paper has no title or abstract to screen",
			ScreenedAt: time.Now().UTC(),
		}
	}

	pre := s.prefilter.Check(paper)
	switch pre.Outcome {
	case OutcomeAutoInclude:
		s.obs.Metrics.ScreeningPrefilterHits.WithLabelValues(string(domain.DecisionInclude)).Inc()
		return domain.ScreeningResult{
			PaperID:    paper.ID,
			Stage:      domain.StageTitleAbstract,
			Decision:   domain.DecisionInclude,
			Confidence: pre.Score,
			Reasoning:  fmt.Sprintf("keyword pre-filter matched inclusion concepts: %s", strings.Join(pre.MatchedGroups, ", ")),
			ScreenedAt: time.Now().UTC(),
		}
	case OutcomeAutoExclude:
		s.obs.Metrics.ScreeningPrefilterHits.WithLabelValues(string(domain.DecisionExclude)).Inc()
		return domain.ScreeningResult{
			PaperID:         paper.ID,
			Stage:           domain.StageTitleAbstract,
			Decision:        domain.DecisionExclude,
			Confidence:      pre.Score,
			Reasoning:       fmt.Sprintf("keyword pre-filter matched exclusion concept %q", strings.Join(pre.MatchedGroups, ", ")),
			ExclusionReason: "matched exclusion concepts",
			ScreenedAt:      time.Now().UTC(),
		}
	}

	decision, source := llm.CallDecision(ctx, s.caller, systemPrompt(tc), titleAbstractPrompt(paper, s.cfg.Criteria))
	return resultFromDecision(paper, domain.StageTitleAbstract, decision, source)
}

func (s *Screener) screenFullText(ctx context.Context, paper *domain.Paper, tc *domain.TopicContext, texts FullTextProvider, prior map[string]domain.ScreeningResult) domain.ScreeningResult {
	var text string
	if texts != nil {
		var err error
		text, err = texts.FullText(ctx, paper)
		if err != nil {
			s.obs.Logger.Warn().
				Err(err).
				Str("paper_id", paper.ID.String()).
				Msg("full text retrieval failed, degrading to title/abstract decision")
			text = ""
		}
	}

	if strings.TrimSpace(text) == "" {
		return s.degradedFullText(paper, prior)
	}

	decision, source := llm.CallDecision(ctx, s.caller, systemPrompt(tc), fullTextPrompt(paper, s.cfg.Criteria, text))
	return resultFromDecision(paper, domain.StageFullText, decision, source)
}

// degradedFullText reuses the title/abstract verdict with reduced
// confidence. A weakened include flips to uncertain so the paper reaches
// the adjudication queue instead of being auto-included on partial evidence.
func (s *Screener) degradedFullText(paper *domain.Paper, prior map[string]domain.ScreeningResult) domain.ScreeningResult {
	base, ok := prior[paper.ID.String()]
	if !ok {
		return domain.ScreeningResult{
			PaperID:    paper.ID,
			Stage:      domain.StageFullText,
			Decision:   domain.DecisionUncertain,
			Confidence: noTextConfidence,
			Reasoning:  "DEGRADED MODE: full-text unavailable and no title/abstract decision to fall back on",
			Degraded:   true,
			ScreenedAt: time.Now().UTC(),
		}
	}

	confidence := base.Confidence * degradedConfidenceFactor
	decision := base.Decision
	if decision == domain.DecisionInclude && confidence < degradedIncludeFloor {
		decision = domain.DecisionUncertain
	}

	return domain.ScreeningResult{
		PaperID:         paper.ID,
		Stage:           domain.StageFullText,
		Decision:        decision,
		Confidence:      confidence,
		Reasoning:       "DEGRADED MODE: full-text unavailable; " + base.Reasoning,
		ExclusionReason: base.ExclusionReason,
		Degraded:        true,
		ScreenedAt:      time.Now().UTC(),
	}
}

// resultFromDecision maps an LLM decision onto a ScreeningResult. Unknown
// decision strings are treated as uncertain rather than trusted.
func resultFromDecision(paper *domain.Paper, stage domain.ScreeningStage, d llm.Decision, source llm.DecisionSource) domain.ScreeningResult {
	decision := domain.ScreeningDecision(d.Decision)
	if !decision.IsValid() {
		decision = domain.DecisionUncertain
	}

	return domain.ScreeningResult{
		PaperID:         paper.ID,
		Stage:           stage,
		Decision:        decision,
		Confidence:      d.Confidence,
		Reasoning:       d.Reasoning,
		ExclusionReason: d.ExclusionReason,
		Degraded:        source == llm.DecisionDegraded,
		ScreenedAt:      time.Now().UTC(),
	}
}

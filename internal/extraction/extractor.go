// Package extraction pulls structured study data out of included papers
// with per-paper schema-constrained LLM calls.
package extraction

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/llm"
	"github.com/reviewkit/reviewkit/internal/observability"
)

// TextProvider retrieves document text for extraction. Implementations may
// return an error or empty text; extraction then falls back to the title
// and abstract.
type TextProvider interface {
	FullText(ctx context.Context, paper *domain.Paper) (string, error)
}

// Config holds the extraction pipeline configuration.
type Config struct {
	// Concurrency bounds how many papers are extracted at once.
	Concurrency int
}

// Failure records one paper whose extraction could not produce validated
// structured data after the caller's retry budget.
type Failure struct {
	PaperID string `json:"paper_id"`
	Title   string `json:"title"`
	Reason  string `json:"reason"`
}

// Outcome aggregates the extraction phase results.
type Outcome struct {
	Data     []domain.ExtractedData `json:"data"`
	Failures []Failure              `json:"failures,omitempty"`
}

// payload is the schema the provider must fill. Objectives is the one
// field every study description can support; the rest may come back empty
// for papers that do not report them.
type payload struct {
	Objectives   string            `json:"objectives" validate:"required"`
	Methodology  string            `json:"methodology"`
	StudyDesign  string            `json:"study_design"`
	Participants string            `json:"participants"`
	Outcomes     []string          `json:"outcomes"`
	KeyFindings  []string          `json:"key_findings"`
	Limitations  []string          `json:"limitations"`
	DomainFields map[string]string `json:"domain_fields,omitempty"`
}

// Extractor runs structured data extraction over included papers.
type Extractor struct {
	caller *llm.Caller
	cfg    Config
	obs    *observability.Observer
}

// NewExtractor creates an Extractor using the given caller.
func NewExtractor(caller *llm.Caller, cfg Config, obs *observability.Observer) *Extractor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if obs == nil {
		obs = observability.Nop()
	}
	return &Extractor{caller: caller, cfg: cfg, obs: obs}
}

// Extract runs per-paper extraction with bounded concurrency. Individual
// failures are collected, not raised; the only error returned is context
// cancellation. texts may be nil, in which case only title and abstract
// are sent to the provider.
func (e *Extractor) Extract(ctx context.Context, papers []*domain.Paper, tc *domain.TopicContext, texts TextProvider) (*Outcome, error) {
	outcome := &Outcome{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for _, paper := range papers {
		paper := paper
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			data, fail := e.extractOne(gctx, paper, tc, texts)

			mu.Lock()
			defer mu.Unlock()
			if fail != nil {
				outcome.Failures = append(outcome.Failures, Failure{
					PaperID: paper.ID.String(),
					Title:   paper.Title,
					Reason:  fail.String(),
				})
				return nil
			}
			outcome.Data = append(outcome.Data, *data)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.obs.Logger.Info().
		Int("extracted", len(outcome.Data)).
		Int("failed", len(outcome.Failures)).
		Msg("data extraction complete")
	return outcome, nil
}

func (e *Extractor) extractOne(ctx context.Context, paper *domain.Paper, tc *domain.TopicContext, texts TextProvider) (*domain.ExtractedData, *llm.ParseFailure) {
	var text string
	if texts != nil {
		var err error
		text, err = texts.FullText(ctx, paper)
		if err != nil {
			e.obs.Logger.Warn().
				Err(err).
				Str("paper_id", paper.ID.String()).
				Msg("full text retrieval failed, extracting from title/abstract")
			text = ""
		}
	}

	out, fail := llm.CallStructured[payload](ctx, e.caller, extractionSystemPrompt(tc), extractionPrompt(paper, text))
	if fail != nil {
		e.obs.Logger.Warn().
			Str("paper_id", paper.ID.String()).
			Str("failure", fail.String()).
			Msg("extraction failed for paper")
		return nil, fail
	}

	return &domain.ExtractedData{
		PaperID:      paper.ID,
		Objectives:   out.Objectives,
		Methodology:  out.Methodology,
		StudyDesign:  out.StudyDesign,
		Participants: out.Participants,
		Outcomes:     out.Outcomes,
		KeyFindings:  out.KeyFindings,
		Limitations:  out.Limitations,
		DomainFields: out.DomainFields,
		ExtractedAt:  time.Now().UTC(),
	}, nil
}

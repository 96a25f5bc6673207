// Package analysis covers the post-extraction phases: study quality
// assessment and deterministic visualization rendering.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/llm"
	"github.com/reviewkit/reviewkit/internal/observability"
)

// lowQualityThreshold marks studies called out in the summary.
const lowQualityThreshold = 0.4

// Assessment is one study's quality verdict.
type Assessment struct {
	PaperID    string   `json:"paper_id"`
	Title      string   `json:"title"`
	Score      float64  `json:"score"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
}

// QualityOutcome aggregates the quality assessment phase.
type QualityOutcome struct {
	Assessments []Assessment `json:"assessments"`
	FailedCount int          `json:"failed_count"`
}

type qualityPayload struct {
	Score      float64  `json:"score" validate:"min=0,max=1"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Rationale  string   `json:"rationale" validate:"required"`
}

// QualityConfig holds the quality assessment configuration.
type QualityConfig struct {
	// Concurrency bounds how many papers are assessed at once.
	Concurrency int
}

// QualityAssessor scores included studies with per-paper LLM calls.
type QualityAssessor struct {
	caller *llm.Caller
	cfg    QualityConfig
	obs    *observability.Observer
}

// NewQualityAssessor creates a QualityAssessor using the given caller.
func NewQualityAssessor(caller *llm.Caller, cfg QualityConfig, obs *observability.Observer) *QualityAssessor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if obs == nil {
		obs = observability.Nop()
	}
	return &QualityAssessor{caller: caller, cfg: cfg, obs: obs}
}

// Assess scores the included studies with bounded concurrency. Individual
// failures are tolerated and counted; the phase errors only when every
// study failed, since a review with zero quality signals cannot proceed.
func (a *QualityAssessor) Assess(ctx context.Context, papers []*domain.Paper, extracted []domain.ExtractedData, tc *domain.TopicContext) (*QualityOutcome, error) {
	byID := make(map[string]*domain.ExtractedData, len(extracted))
	for i := range extracted {
		byID[extracted[i].PaperID.String()] = &extracted[i]
	}

	outcome := &QualityOutcome{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)

	for _, paper := range papers {
		paper := paper
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			out, fail := llm.CallStructured[qualityPayload](gctx, a.caller,
				qualitySystemPrompt(tc), qualityPrompt(paper, byID[paper.ID.String()]))

			mu.Lock()
			defer mu.Unlock()
			if fail != nil {
				a.obs.Logger.Warn().
					Str("paper_id", paper.ID.String()).
					Str("failure", fail.String()).
					Msg("quality assessment failed for paper")
				outcome.FailedCount++
				return nil
			}
			outcome.Assessments = append(outcome.Assessments, Assessment{
				PaperID:    paper.ID.String(),
				Title:      paper.Title,
				Score:      out.Score,
				Strengths:  out.Strengths,
				Weaknesses: out.Weaknesses,
				Rationale:  out.Rationale,
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(papers) > 0 && len(outcome.Assessments) == 0 {
		return nil, errors.New("quality assessment produced no results")
	}

	sort.Slice(outcome.Assessments, func(i, j int) bool {
		return outcome.Assessments[i].Score > outcome.Assessments[j].Score
	})
	return outcome, nil
}

// Summary renders a short Markdown digest of the assessments for the
// manuscript writer.
func (o *QualityOutcome) Summary() string {
	if len(o.Assessments) == 0 {
		return ""
	}

	total := 0.0
	var low []Assessment
	for _, a := range o.Assessments {
		total += a.Score
		if a.Score < lowQualityThreshold {
			low = append(low, a)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d studies assessed; mean quality score %.2f.\n", len(o.Assessments), total/float64(len(o.Assessments)))
	if o.FailedCount > 0 {
		fmt.Fprintf(&sb, "%d studies could not be assessed.\n", o.FailedCount)
	}
	if len(low) > 0 {
		sb.WriteString("Studies with low quality scores:\n")
		for _, a := range low {
			fmt.Fprintf(&sb, "- %s (%.2f)", a.Title, a.Score)
			if len(a.Weaknesses) > 0 {
				fmt.Fprintf(&sb, ": %s", strings.Join(a.Weaknesses, "; "))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func qualitySystemPrompt(tc *domain.TopicContext) string {
	var sb strings.Builder
	sb.WriteString("You are a systematic review quality assessor.\n")
	fmt.Fprintf(&sb, "Review topic: %s\n", tc.Topic)
	sb.WriteString("\nAssess the methodological quality of the study. " +
		"Respond with a JSON object containing \"score\" (0.0 to 1.0), " +
		"\"strengths\" (array of strings), \"weaknesses\" (array of strings), " +
		"and \"rationale\".")
	return sb.String()
}

func qualityPrompt(paper *domain.Paper, data *domain.ExtractedData) string {
	var sb strings.Builder
	sb.WriteString("Assess the quality of the following study.\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", paper.Title)
	if paper.Abstract != "" {
		fmt.Fprintf(&sb, "Abstract: %s\n", paper.Abstract)
	}
	if data != nil {
		if data.Methodology != "" {
			fmt.Fprintf(&sb, "Methodology: %s\n", data.Methodology)
		}
		if data.StudyDesign != "" {
			fmt.Fprintf(&sb, "Study design: %s\n", data.StudyDesign)
		}
		if data.Participants != "" {
			fmt.Fprintf(&sb, "Participants: %s\n", data.Participants)
		}
		if len(data.Limitations) > 0 {
			fmt.Fprintf(&sb, "Reported limitations: %s\n", strings.Join(data.Limitations, "; "))
		}
	}
	return sb.String()
}

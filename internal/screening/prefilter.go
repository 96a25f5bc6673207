// Package screening implements the two-stage screening pipeline: a keyword
// pre-filter that resolves clear-cut papers without an LLM call, and an LLM
// stage for the remainder. Uncertain verdicts are collected into an
// adjudication queue rather than dropped.
package screening

import (
	"strings"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// PrefilterOutcome is the verdict of the keyword pre-filter for one paper.
type PrefilterOutcome string

const (
	// OutcomeAutoInclude: inclusion concepts matched a majority of groups
	// above the include threshold.
	OutcomeAutoInclude PrefilterOutcome = "auto_include"

	// OutcomeAutoExclude: an exclusion concept group matched above the
	// exclude threshold.
	OutcomeAutoExclude PrefilterOutcome = "auto_exclude"

	// OutcomeNeedsLLM: neither short-circuit fired; the paper goes to the
	// LLM stage.
	OutcomeNeedsLLM PrefilterOutcome = "needs_llm"
)

// PrefilterConfig holds the concept groups and thresholds for the keyword
// pre-filter.
type PrefilterConfig struct {
	// InclusionConcepts are groups of interchangeable inclusion terms.
	// A paper matching a majority of groups passes without an LLM call.
	InclusionConcepts [][]string

	// ExclusionConcepts are groups of exclusion terms. Any group matching
	// above ExcludeThreshold short-circuits to exclude.
	ExclusionConcepts [][]string

	// IncludeThreshold is the per-group score required for a group to
	// count toward the inclusion majority.
	IncludeThreshold float64

	// ExcludeThreshold is the score above which an exclusion group
	// short-circuits.
	ExcludeThreshold float64
}

// PrefilterResult describes how the pre-filter resolved one paper.
type PrefilterResult struct {
	Outcome PrefilterOutcome

	// Score is the confidence behind the outcome: the exclusion group
	// score for auto-exclude, the mean matched-group score for
	// auto-include, zero for needs-LLM.
	Score float64

	// MatchedGroups lists the concept terms that drove the outcome.
	MatchedGroups []string
}

// Prefilter scores paper text against concept groups without any LLM call.
type Prefilter struct {
	cfg PrefilterConfig
}

// NewPrefilter creates a Prefilter. Zero thresholds fall back to the
// conventional 0.6 (include) and 0.8 (exclude).
func NewPrefilter(cfg PrefilterConfig) *Prefilter {
	if cfg.IncludeThreshold <= 0 {
		cfg.IncludeThreshold = 0.6
	}
	if cfg.ExcludeThreshold <= 0 {
		cfg.ExcludeThreshold = 0.8
	}
	return &Prefilter{cfg: cfg}
}

// Check resolves a paper against the concept groups. Exclusion is evaluated
// first: a single strong exclusion match wins over inclusion matches.
func (p *Prefilter) Check(paper *domain.Paper) PrefilterResult {
	text := domain.NormalizeTitle(paper.ScreeningText())
	if text == "" {
		return PrefilterResult{Outcome: OutcomeNeedsLLM}
	}

	for _, group := range p.cfg.ExclusionConcepts {
		score, term := groupScore(text, group)
		if score >= p.cfg.ExcludeThreshold {
			return PrefilterResult{
				Outcome:       OutcomeAutoExclude,
				Score:         score,
				MatchedGroups: []string{term},
			}
		}
	}

	if len(p.cfg.InclusionConcepts) > 0 {
		matched := 0
		total := 0.0
		var terms []string
		for _, group := range p.cfg.InclusionConcepts {
			score, term := groupScore(text, group)
			if score >= p.cfg.IncludeThreshold {
				matched++
				total += score
				terms = append(terms, term)
			}
		}
		if matched > len(p.cfg.InclusionConcepts)/2 {
			return PrefilterResult{
				Outcome:       OutcomeAutoInclude,
				Score:         total / float64(matched),
				MatchedGroups: terms,
			}
		}
	}

	return PrefilterResult{Outcome: OutcomeNeedsLLM}
}

// groupScore is the best term score within one concept group, with the term
// that produced it.
func groupScore(text string, group []string) (float64, string) {
	best := 0.0
	bestTerm := ""
	for _, term := range group {
		if score := termScore(text, term); score > best {
			best = score
			bestTerm = term
		}
	}
	return best, bestTerm
}

// termScore computes fuzzy overlap between a concept term and the normalized
// paper text. A whole-phrase hit scores 1.0; otherwise the score is the
// fraction of the term's words present in the text.
func termScore(text, term string) float64 {
	normalized := domain.NormalizeTitle(term)
	if normalized == "" {
		return 0.0
	}
	if strings.Contains(" "+text+" ", " "+normalized+" ") {
		return 1.0
	}

	words := strings.Fields(normalized)
	if len(words) == 1 {
		return 0.0
	}

	textWords := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		textWords[w] = true
	}

	present := 0
	for _, w := range words {
		if textWords[w] {
			present++
		}
	}
	return float64(present) / float64(len(words))
}

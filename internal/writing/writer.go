// Package writing drafts manuscript sections with sequential LLM calls and
// assembles them into the final Markdown report.
package writing

import (
	"context"
	"fmt"

	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/llm"
	"github.com/reviewkit/reviewkit/internal/observability"
)

// Section names one manuscript section.
type Section string

const (
	SectionAbstract     Section = "abstract"
	SectionIntroduction Section = "introduction"
	SectionMethods      Section = "methods"
	SectionResults      Section = "results"
	SectionDiscussion   Section = "discussion"
	SectionSummary      Section = "summary"
)

// draftOrder is the order sections are drafted in. Later sections may
// build on earlier ones, so drafting is strictly sequential.
var draftOrder = []Section{
	SectionAbstract,
	SectionIntroduction,
	SectionMethods,
	SectionResults,
	SectionDiscussion,
	SectionSummary,
}

// Input carries everything the writer needs to draft the manuscript.
type Input struct {
	Topic     *domain.TopicContext
	Papers    []*domain.Paper
	Extracted []domain.ExtractedData
	Prisma    *domain.PRISMACounts

	// QualitySummary and Visualizations come from the analysis phases and
	// may be empty when those phases were skipped or failed.
	QualitySummary string
	Visualizations string
}

// Manuscript holds the drafted sections keyed by section name.
type Manuscript struct {
	Sections map[Section]string
}

// Writer drafts manuscript sections one at a time.
type Writer struct {
	caller *llm.Caller
	obs    *observability.Observer
}

// NewWriter creates a Writer using the given caller.
func NewWriter(caller *llm.Caller, obs *observability.Observer) *Writer {
	if obs == nil {
		obs = observability.Nop()
	}
	return &Writer{caller: caller, obs: obs}
}

// Draft produces all manuscript sections sequentially. Each section call
// carries its own retry budget inside the caller; a section that still
// fails afterwards is an error, since the report cannot be assembled
// without it.
func (w *Writer) Draft(ctx context.Context, input *Input) (*Manuscript, error) {
	m := &Manuscript{Sections: make(map[Section]string, len(draftOrder))}

	for _, section := range draftOrder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, fail := llm.CallText(ctx, w.caller, writerSystemPrompt(input.Topic), sectionPrompt(section, input, m))
		if fail != nil {
			return nil, fmt.Errorf("draft %s section: %s", section, fail.String())
		}

		m.Sections[section] = text
		w.obs.Logger.Info().
			Str("section", string(section)).
			Int("chars", len(text)).
			Msg("manuscript section drafted")
	}

	return m, nil
}

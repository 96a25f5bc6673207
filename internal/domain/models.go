// Package domain provides domain models and business logic for the
// systematic review pipeline.
package domain

// ScreeningDecision is the verdict produced by a screening stage for a paper.
type ScreeningDecision string

const (
	DecisionInclude   ScreeningDecision = "include"
	DecisionExclude   ScreeningDecision = "exclude"
	DecisionUncertain ScreeningDecision = "uncertain"
)

// IsValid reports whether the decision is one of the known values.
func (d ScreeningDecision) IsValid() bool {
	switch d {
	case DecisionInclude, DecisionExclude, DecisionUncertain:
		return true
	default:
		return false
	}
}

// ScreeningStage identifies which screening pass produced a result.
type ScreeningStage string

const (
	StageTitleAbstract ScreeningStage = "title_abstract"
	StageFullText      ScreeningStage = "full_text"
)

// SourceType represents the bibliographic database that provided a paper.
type SourceType string

const (
	SourceTypeArXiv    SourceType = "arxiv"
	SourceTypePubMed   SourceType = "pubmed"
	SourceTypeOpenAlex SourceType = "openalex"
)

// WorkflowStatus represents the lifecycle states of a review run.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusPartial   WorkflowStatus = "partial"
	WorkflowStatusFailed    WorkflowStatus = "failed"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusPartial, WorkflowStatusFailed:
		return true
	default:
		return false
	}
}

// Slugify converts a topic name into the filesystem-safe slug used in
// checkpoint directory names: lowercase, runs of non-alphanumerics collapsed
// to single underscores.
func Slugify(topic string) string {
	var b []rune
	lastUnderscore := true // suppress leading underscore
	for _, r := range topic {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b = append(b, r)
			lastUnderscore = false
		case r >= 'A' && r <= 'Z':
			b = append(b, r+('a'-'A'))
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b = append(b, '_')
				lastUnderscore = true
			}
		}
	}
	// Trim a trailing underscore.
	for len(b) > 0 && b[len(b)-1] == '_' {
		b = b[:len(b)-1]
	}
	return string(b)
}

// TopicContext carries the research topic and the knowledge accumulated by
// the workflow as it progresses. It is created once at startup from config,
// enriched by each phase, never reset mid-run, and serialized into every
// checkpoint.
type TopicContext struct {
	Topic            string   `json:"topic"`
	Slug             string   `json:"slug"`
	Domain           string   `json:"domain"`
	ResearchQuestion string   `json:"research_question"`
	Scope            string   `json:"scope"`
	Keywords         []string `json:"keywords"`
	Insights         []string `json:"insights"`
	Findings         []string `json:"findings"`
}

// AddInsight appends an insight discovered by a phase.
func (tc *TopicContext) AddInsight(insight string) {
	if insight == "" {
		return
	}
	tc.Insights = append(tc.Insights, insight)
}

// AddFinding appends a finding discovered by a phase.
func (tc *TopicContext) AddFinding(finding string) {
	if finding == "" {
		return
	}
	tc.Findings = append(tc.Findings, finding)
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScreeningResult is the decision produced for one paper by one screening
// stage. Results are never mutated after creation; a paper screened at both
// stages accumulates one result per stage.
type ScreeningResult struct {
	PaperID         uuid.UUID         `json:"paper_id"`
	Stage           ScreeningStage    `json:"stage"`
	Decision        ScreeningDecision `json:"decision"`
	Confidence      float64           `json:"confidence"`
	Reasoning       string            `json:"reasoning"`
	ExclusionReason string            `json:"exclusion_reason,omitempty"`
	Degraded        bool              `json:"degraded,omitempty"`
	ScreenedAt      time.Time         `json:"screened_at"`
}

// IsUncertain reports whether the result needs manual adjudication.
func (r ScreeningResult) IsUncertain() bool {
	return r.Decision == DecisionUncertain
}

// ExtractedData holds the structured fields extracted from an included
// paper. Produced once in the extraction phase; downstream consumers
// (writers) never mutate it.
type ExtractedData struct {
	PaperID      uuid.UUID         `json:"paper_id"`
	Objectives   string            `json:"objectives"`
	Methodology  string            `json:"methodology"`
	StudyDesign  string            `json:"study_design"`
	Participants string            `json:"participants"`
	Outcomes     []string          `json:"outcomes"`
	KeyFindings  []string          `json:"key_findings"`
	Limitations  []string          `json:"limitations"`
	DomainFields map[string]string `json:"domain_fields,omitempty"`
	ExtractedAt  time.Time         `json:"extracted_at"`
}

// AdjudicationItem is one uncertain decision awaiting human review.
type AdjudicationItem struct {
	PaperID    uuid.UUID         `json:"paper_id"`
	Title      string            `json:"title"`
	Stage      ScreeningStage    `json:"stage"`
	Decision   ScreeningDecision `json:"decision"`
	Confidence float64           `json:"confidence"`
	Reasoning  string            `json:"reasoning"`
}

package screening

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// AdjudicationFilename is the export file written into the workflow
// checkpoint directory and served by the inspection server.
const AdjudicationFilename = "adjudication_queue.json"

// AdjudicationQueue collects uncertain screening decisions for manual
// review. It is safe for concurrent use; per-paper screening tasks append
// as they finish.
type AdjudicationQueue struct {
	mu    sync.Mutex
	items []domain.AdjudicationItem
}

// NewAdjudicationQueue creates an empty queue.
func NewAdjudicationQueue() *AdjudicationQueue {
	return &AdjudicationQueue{}
}

// Add appends an uncertain decision to the queue.
func (q *AdjudicationQueue) Add(item domain.AdjudicationItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// Len returns the number of queued items.
func (q *AdjudicationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a snapshot of the queued items.
func (q *AdjudicationQueue) Items() []domain.AdjudicationItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.AdjudicationItem, len(q.items))
	copy(out, q.items)
	return out
}

// AdjudicationExport is the JSON artifact handed to human reviewers.
type AdjudicationExport struct {
	ExportTimestamp time.Time                                           `json:"export_timestamp"`
	Summary         AdjudicationSummary                                 `json:"summary"`
	Stages          map[domain.ScreeningStage][]domain.AdjudicationItem `json:"stages"`
	Instructions    string                                              `json:"instructions"`
}

// AdjudicationSummary aggregates queue counts.
type AdjudicationSummary struct {
	TotalUncertain int                           `json:"total_uncertain"`
	ByStage        map[domain.ScreeningStage]int `json:"by_stage"`
}

const adjudicationInstructions = "Each paper below received an uncertain automated screening decision. " +
	"Review the title, reasoning, and confidence for each entry and record a final include or exclude " +
	"decision. Papers in this file have not been excluded from the review; they are awaiting your verdict."

// Export builds the reviewer-facing artifact from the current queue
// contents, grouped by screening stage.
func (q *AdjudicationQueue) Export() *AdjudicationExport {
	items := q.Items()

	export := &AdjudicationExport{
		ExportTimestamp: time.Now().UTC(),
		Summary: AdjudicationSummary{
			TotalUncertain: len(items),
			ByStage:        make(map[domain.ScreeningStage]int),
		},
		Stages:       make(map[domain.ScreeningStage][]domain.AdjudicationItem),
		Instructions: adjudicationInstructions,
	}

	for _, item := range items {
		export.Stages[item.Stage] = append(export.Stages[item.Stage], item)
		export.Summary.ByStage[item.Stage]++
	}

	return export
}

// WriteFile serializes the export to path as indented JSON.
func (q *AdjudicationQueue) WriteFile(path string) error {
	raw, err := json.MarshalIndent(q.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal adjudication export: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write adjudication export: %w", err)
	}
	return nil
}

package httpserver

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reviewkit/reviewkit/internal/checkpoint"
	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/screening"
	"github.com/reviewkit/reviewkit/internal/workflow"
)

type workflowSummary struct {
	Dir             string `json:"dir"`
	WorkflowID      string `json:"workflow_id"`
	CompletedPhases int    `json:"completed_phases"`
}

type listWorkflowsResponse struct {
	Workflows []workflowSummary `json:"workflows"`
}

type phaseState struct {
	Phase        string    `json:"phase"`
	CompletedAt  time.Time `json:"completed_at"`
	Skipped      bool      `json:"skipped,omitempty"`
	Dependencies []string  `json:"dependencies,omitempty"`
}

type workflowDetailResponse struct {
	Dir          string                `json:"dir"`
	WorkflowID   string                `json:"workflow_id"`
	Topic        string                `json:"topic,omitempty"`
	Status       domain.WorkflowStatus `json:"status"`
	Phases       []phaseState          `json:"phases"`
	PRISMACounts *domain.PRISMACounts  `json:"prisma_counts,omitempty"`
}

func (s *Server) listWorkflows(w http.ResponseWriter, _ *http.Request) {
	resp := listWorkflowsResponse{Workflows: []workflowSummary{}}

	for _, dir := range checkpoint.ListWorkflows(s.root) {
		m, err := checkpoint.Open(s.root, dir, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Str("dir", dir).Msg("skipping unreadable workflow directory")
			continue
		}
		resp.Workflows = append(resp.Workflows, workflowSummary{
			Dir:             dir,
			WorkflowID:      m.WorkflowID(),
			CompletedPhases: len(m.CompletedPhases()),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	dir, ok := workflowDirParam(w, r)
	if !ok {
		return
	}

	m, err := checkpoint.Open(s.root, dir, s.logger)
	if err != nil {
		var nf *checkpoint.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "workflow directory unreadable")
		return
	}

	resp := workflowDetailResponse{
		Dir:        dir,
		WorkflowID: m.WorkflowID(),
		Status:     m.Status(workflow.DefaultRegistry().ExecutionOrder()),
		Phases:     []phaseState{},
	}

	var latest time.Time
	for phase := range m.CompletedPhases() {
		rec, err := m.LoadPhase(phase)
		if err != nil {
			continue
		}
		resp.Phases = append(resp.Phases, phaseState{
			Phase:        rec.Phase,
			CompletedAt:  rec.Timestamp,
			Skipped:      rec.Skipped(),
			Dependencies: rec.Dependencies,
		})
		if rec.TopicContext != nil && resp.Topic == "" {
			resp.Topic = rec.TopicContext.Topic
		}
		if rec.PRISMACounts != nil && rec.Timestamp.After(latest) {
			latest = rec.Timestamp
			resp.PRISMACounts = rec.PRISMACounts
		}
	}

	sortPhaseStates(resp.Phases)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getAdjudication(w http.ResponseWriter, r *http.Request) {
	dir, ok := workflowDirParam(w, r)
	if !ok {
		return
	}

	path := filepath.Join(s.root, dir, screening.AdjudicationFilename)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "no adjudication export for this workflow")
			return
		}
		writeError(w, http.StatusInternalServerError, "adjudication export unreadable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// workflowDirParam validates the {workflowDir} path parameter. Checkpoint
// directories always carry the workflow_ prefix, so anything else (path
// traversal included) is rejected outright.
func workflowDirParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	dir := chi.URLParam(r, "workflowDir")
	if !strings.HasPrefix(dir, "workflow_") || strings.ContainsAny(dir, "/\\") || strings.Contains(dir, "..") {
		writeError(w, http.StatusBadRequest, "invalid workflow directory name")
		return "", false
	}
	return dir, true
}

func sortPhaseStates(phases []phaseState) {
	sort.Slice(phases, func(i, j int) bool {
		return phases[i].CompletedAt.Before(phases[j].CompletedAt)
	})
}

// Package checkpoint persists per-phase workflow state as JSON files so an
// interrupted review run can resume from its last completed phase.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// RecordVersion is the on-disk schema version. Records with a different
// version are treated as corrupt so a resume never misreads old layouts.
const RecordVersion = 1

// Record is one phase checkpoint.
type Record struct {
	Version      int                  `json:"version"`
	Phase        string               `json:"phase"`
	Timestamp    time.Time            `json:"timestamp"`
	WorkflowID   string               `json:"workflow_id"`
	TopicContext *domain.TopicContext `json:"topic_context"`
	Data         json.RawMessage      `json:"data"`
	Dependencies []string             `json:"dependencies"`
	PRISMACounts *domain.PRISMACounts `json:"prisma_counts,omitempty"`
}

// Skipped reports whether the checkpoint recorded no output, which is how
// the pipeline marks a non-critical phase that exhausted its retries.
func (r *Record) Skipped() bool {
	trimmed := bytes.TrimSpace(r.Data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// manifest is written once when a workflow directory is created, so topic
// lookup never has to parse phase records.
type manifest struct {
	Version    int       `json:"version"`
	WorkflowID string    `json:"workflow_id"`
	Topic      string    `json:"topic"`
	Slug       string    `json:"slug"`
	StartedAt  time.Time `json:"started_at"`
}

const manifestFile = "workflow.json"

// NotFoundError reports a missing checkpoint.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("checkpoint not found: %s", e.Path)
}

// CorruptError reports an unreadable or wrong-version checkpoint. Callers
// treat it as "no checkpoint" rather than failing the run.
type CorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("checkpoint corrupt: %s: %s", e.Path, e.Reason)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Manager owns one workflow checkpoint directory.
type Manager struct {
	root       string
	dir        string
	workflowID string
	slug       string
	logger     zerolog.Logger
}

// NewManager creates a fresh workflow directory
// `workflow_<slug>_<timestamp>` under root.
func NewManager(root string, tc *domain.TopicContext, logger zerolog.Logger) (*Manager, error) {
	slug := tc.Slug
	if slug == "" {
		slug = domain.Slugify(tc.Topic)
	}
	name := fmt.Sprintf("workflow_%s_%s", slug, time.Now().Format("20060102_150405"))
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	m := &Manager{
		root:       root,
		dir:        dir,
		workflowID: uuid.NewString(),
		slug:       slug,
		logger:     logger,
	}

	man := manifest{
		Version:    RecordVersion,
		WorkflowID: m.workflowID,
		Topic:      tc.Topic,
		Slug:       slug,
		StartedAt:  time.Now().UTC(),
	}
	if err := writeJSON(filepath.Join(dir, manifestFile), man); err != nil {
		return nil, fmt.Errorf("write workflow manifest: %w", err)
	}

	logger.Info().Str("workflow_id", m.workflowID).Str("dir", dir).Msg("checkpoint directory created")
	return m, nil
}

// Open attaches a Manager to an existing workflow directory for resume.
func Open(root, dirName string, logger zerolog.Logger) (*Manager, error) {
	dir := filepath.Join(root, dirName)
	var man manifest
	if err := readJSON(filepath.Join(dir, manifestFile), &man); err != nil {
		return nil, err
	}
	if man.Version != RecordVersion {
		return nil, &CorruptError{
			Path:   filepath.Join(dir, manifestFile),
			Reason: fmt.Sprintf("manifest version %d, want %d", man.Version, RecordVersion),
		}
	}
	return &Manager{
		root:       root,
		dir:        dir,
		workflowID: man.WorkflowID,
		slug:       man.Slug,
		logger:     logger,
	}, nil
}

// WorkflowID returns the id assigned when the workflow directory was created.
func (m *Manager) WorkflowID() string { return m.workflowID }

// Dir returns the workflow checkpoint directory path.
func (m *Manager) Dir() string { return m.dir }

// SavePhase writes the checkpoint for a phase and returns the file path.
// Saving the same phase twice overwrites the earlier record.
func (m *Manager) SavePhase(phase string, tc *domain.TopicContext, data any, deps []string, counts *domain.PRISMACounts) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal phase data for %s: %w", phase, err)
	}

	rec := Record{
		Version:      RecordVersion,
		Phase:        phase,
		Timestamp:    time.Now().UTC(),
		WorkflowID:   m.workflowID,
		TopicContext: tc,
		Data:         raw,
		Dependencies: deps,
		PRISMACounts: counts,
	}

	path := m.phasePath(phase)
	if err := writeJSON(path, rec); err != nil {
		return "", fmt.Errorf("write checkpoint for %s: %w", phase, err)
	}

	m.logger.Debug().Str("phase", phase).Str("path", path).Msg("checkpoint saved")
	return path, nil
}

// LoadPhase reads the checkpoint for a phase. The returned error is
// *NotFoundError when the phase has no checkpoint and *CorruptError when
// the file cannot be decoded or carries the wrong version.
func (m *Manager) LoadPhase(phase string) (*Record, error) {
	path := m.phasePath(phase)

	var rec Record
	if err := readJSON(path, &rec); err != nil {
		return nil, err
	}
	if rec.Version != RecordVersion {
		return nil, &CorruptError{Path: path, Reason: fmt.Sprintf("version %d, want %d", rec.Version, RecordVersion)}
	}
	if rec.Phase != phase {
		return nil, &CorruptError{Path: path, Reason: fmt.Sprintf("phase %q in file named for %q", rec.Phase, phase)}
	}
	return &rec, nil
}

// LoadPhaseData loads a phase checkpoint and decodes its data payload into out.
func (m *Manager) LoadPhaseData(phase string, out any) (*Record, error) {
	rec, err := m.LoadPhase(phase)
	if err != nil {
		return nil, err
	}
	if out != nil && len(rec.Data) > 0 {
		if err := json.Unmarshal(rec.Data, out); err != nil {
			return nil, &CorruptError{Path: m.phasePath(phase), Reason: "undecodable data payload", Err: err}
		}
	}
	return rec, nil
}

// HasPhase reports whether a loadable checkpoint exists for the phase.
func (m *Manager) HasPhase(phase string) bool {
	_, err := m.LoadPhase(phase)
	return err == nil
}

// CompletedPhases returns the phases with valid checkpoints whose declared
// dependencies also have valid checkpoints. A checkpoint whose dependency
// chain is broken is not trusted: resume re-runs it.
func (m *Manager) CompletedPhases() map[string]bool {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil
	}

	records := make(map[string]*Record)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == manifestFile || !strings.HasSuffix(name, ".json") {
			continue
		}
		phase := strings.TrimSuffix(name, ".json")
		rec, err := m.LoadPhase(phase)
		if err != nil {
			m.logger.Warn().Err(err).Str("phase", phase).Msg("ignoring unreadable checkpoint")
			continue
		}
		records[phase] = rec
	}

	completed := make(map[string]bool, len(records))
	for phase, rec := range records {
		ok := true
		for _, dep := range rec.Dependencies {
			if _, exists := records[dep]; !exists {
				m.logger.Warn().Str("phase", phase).Str("missing_dependency", dep).Msg("checkpoint dependency missing, phase will re-run")
				ok = false
				break
			}
		}
		if ok {
			completed[phase] = true
		}
	}
	return completed
}

// Status derives the workflow's lifecycle state from its checkpoints,
// given the pipeline's full phase order. Checkpoints record progress, not
// failure, so an aborted run is indistinguishable from one still in
// flight: both report running.
func (m *Manager) Status(order []string) domain.WorkflowStatus {
	completed := m.CompletedPhases()
	if len(completed) == 0 {
		return domain.WorkflowStatusPending
	}

	skipped := false
	for _, phase := range order {
		if !completed[phase] {
			return domain.WorkflowStatusRunning
		}
		rec, err := m.LoadPhase(phase)
		if err != nil {
			return domain.WorkflowStatusRunning
		}
		if rec.Skipped() {
			skipped = true
		}
	}

	if skipped {
		return domain.WorkflowStatusPartial
	}
	return domain.WorkflowStatusCompleted
}

// FindByTopic returns the name of the most recent workflow directory under
// root whose stored topic slug matches topic (after normalization), or ""
// when none exists.
func FindByTopic(root, topic string) string {
	want := domain.Slugify(topic)
	entries, err := os.ReadDir(root)
	if err != nil {
		return ""
	}

	var matches []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "workflow_") {
			continue
		}
		var man manifest
		if err := readJSON(filepath.Join(root, entry.Name(), manifestFile), &man); err != nil {
			continue
		}
		if man.Slug == want || domain.Slugify(man.Topic) == want {
			matches = append(matches, entry.Name())
		}
	}
	if len(matches) == 0 {
		return ""
	}
	// Directory names embed the creation timestamp, so lexicographic order
	// is chronological.
	sort.Strings(matches)
	return matches[len(matches)-1]
}

// ListWorkflows returns every workflow directory name under root, newest
// first.
func ListWorkflows(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "workflow_") {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	return dirs
}

func (m *Manager) phasePath(phase string) string {
	return filepath.Join(m.dir, phase+".json")
}

// writeJSON writes v atomically: temp file then rename, so a crash never
// leaves a half-written checkpoint in place of a good one.
func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &NotFoundError{Path: path}
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &CorruptError{Path: path, Reason: "undecodable JSON", Err: err}
	}
	return nil
}

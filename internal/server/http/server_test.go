package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewkit/reviewkit/internal/checkpoint"
	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/observability"
	"github.com/reviewkit/reviewkit/internal/screening"
	"github.com/reviewkit/reviewkit/internal/workflow"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	obs := observability.NewObserver(zerolog.Nop(), "sysrev")
	return New(Config{Address: "127.0.0.1:0"}, root, obs), root
}

func seedWorkflow(t *testing.T, root, topic string) *checkpoint.Manager {
	t.Helper()
	tc := &domain.TopicContext{Topic: topic, Slug: domain.Slugify(topic)}
	m, err := checkpoint.NewManager(root, tc, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListWorkflows(t *testing.T) {
	t.Parallel()

	s, root := newTestServer(t)
	m := seedWorkflow(t, root, "chaos engineering")
	_, err := m.SavePhase("search_databases", &domain.TopicContext{Topic: "chaos engineering"}, nil, nil, nil)
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodGet, "/workflows")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listWorkflowsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Workflows, 1)
	assert.Equal(t, m.WorkflowID(), resp.Workflows[0].WorkflowID)
	assert.Equal(t, 1, resp.Workflows[0].CompletedPhases)
}

func TestListWorkflows_Empty(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/workflows")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"workflows":[]}`, rec.Body.String())
}

func TestGetWorkflow(t *testing.T) {
	t.Parallel()

	s, root := newTestServer(t)
	m := seedWorkflow(t, root, "chaos engineering")

	tc := &domain.TopicContext{Topic: "chaos engineering"}
	prisma := &domain.PRISMACounts{}
	require.NoError(t, prisma.Set(domain.PRISMAFound, 120))

	_, err := m.SavePhase("search_databases", tc, nil, nil, prisma)
	require.NoError(t, err)
	_, err = m.SavePhase("deduplication", tc, nil, []string{"search_databases"}, prisma)
	require.NoError(t, err)

	dir := workflowDirName(t, root)
	rec := doRequest(t, s, http.MethodGet, "/workflows/"+dir)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp workflowDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, m.WorkflowID(), resp.WorkflowID)
	assert.Equal(t, "chaos engineering", resp.Topic)
	assert.Equal(t, domain.WorkflowStatusRunning, resp.Status)
	require.Len(t, resp.Phases, 2)
	assert.Equal(t, "search_databases", resp.Phases[0].Phase)
	require.NotNil(t, resp.PRISMACounts)
	assert.Equal(t, 120, resp.PRISMACounts.Get(domain.PRISMAFound))
}

func TestGetWorkflow_StatusReflectsOutcome(t *testing.T) {
	t.Parallel()

	s, root := newTestServer(t)
	m := seedWorkflow(t, root, "chaos engineering")
	tc := &domain.TopicContext{Topic: "chaos engineering"}

	registry := workflow.DefaultRegistry()
	for _, phase := range registry.ExecutionOrder() {
		_, err := m.SavePhase(phase, tc, map[string]int{"items": 1}, registry.Dependencies(phase), nil)
		require.NoError(t, err)
	}

	dir := workflowDirName(t, root)
	rec := doRequest(t, s, http.MethodGet, "/workflows/"+dir)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp workflowDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.WorkflowStatusCompleted, resp.Status)

	// A phase that checkpointed without output was skipped; the finished
	// run is only partial.
	_, err := m.SavePhase(workflow.PhaseVisualizations, tc, nil, registry.Dependencies(workflow.PhaseVisualizations), nil)
	require.NoError(t, err)

	rec = doRequest(t, s, http.MethodGet, "/workflows/"+dir)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.WorkflowStatusPartial, resp.Status)

	for _, p := range resp.Phases {
		if p.Phase == workflow.PhaseVisualizations {
			assert.True(t, p.Skipped)
		}
	}
}

func TestGetWorkflow_NotFound(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/workflows/workflow_missing_20240101_000000")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetWorkflow_RejectsBadNames(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	for _, dir := range []string{"..", "etc", "workflow_a..b"} {
		rec := doRequest(t, s, http.MethodGet, "/workflows/"+dir)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "dir %q", dir)
	}
}

func TestGetAdjudication(t *testing.T) {
	t.Parallel()

	s, root := newTestServer(t)
	m := seedWorkflow(t, root, "chaos engineering")

	queue := screening.NewAdjudicationQueue()
	queue.Add(domain.AdjudicationItem{
		PaperID:    uuid.New(),
		Title:      "Ambiguous Paper",
		Stage:      domain.StageTitleAbstract,
		Decision:   domain.DecisionUncertain,
		Confidence: 0.3,
	})
	require.NoError(t, queue.WriteFile(m.Dir()+"/"+screening.AdjudicationFilename))

	dir := workflowDirName(t, root)
	rec := doRequest(t, s, http.MethodGet, "/workflows/"+dir+"/adjudication")
	require.Equal(t, http.StatusOK, rec.Code)

	var export screening.AdjudicationExport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &export))
	assert.Equal(t, 1, export.Summary.TotalUncertain)
	assert.Len(t, export.Stages[domain.StageTitleAbstract], 1)
}

func TestGetAdjudication_NotFound(t *testing.T) {
	t.Parallel()

	s, root := newTestServer(t)
	seedWorkflow(t, root, "chaos engineering")

	dir := workflowDirName(t, root)
	rec := doRequest(t, s, http.MethodGet, "/workflows/"+dir+"/adjudication")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	s.obs.Metrics.PapersDiscovered.Add(3)

	rec := doRequest(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sysrev_papers_discovered_total 3")
}

func workflowDirName(t *testing.T, root string) string {
	t.Helper()
	dirs := checkpoint.ListWorkflows(root)
	require.Len(t, dirs, 1)
	return dirs[0]
}

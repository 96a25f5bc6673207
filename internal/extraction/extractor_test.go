package extraction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/llm"
)

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	content string
	err     error
}

func (p *fakeProvider) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: p.content, Model: "test-model"}, nil
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "test-model" }

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type mapTexts map[string]string

func (m mapTexts) FullText(_ context.Context, paper *domain.Paper) (string, error) {
	text, ok := m[paper.Title]
	if !ok {
		return "", errors.New("no full text")
	}
	return text, nil
}

func newTestExtractor(p llm.Provider, concurrency int) *Extractor {
	caller := llm.NewCaller(p, llm.CallerConfig{Agent: "extractor"}, nil, nil, nil)
	return NewExtractor(caller, Config{Concurrency: concurrency}, nil)
}

func testTopic() *domain.TopicContext {
	return &domain.TopicContext{
		Topic:  "chaos engineering in microservices",
		Domain: "software engineering",
	}
}

const validPayload = `{
	"objectives": "Evaluate fault injection strategies",
	"methodology": "Controlled experiment on a service mesh",
	"study_design": "experimental",
	"participants": "12 production services",
	"outcomes": ["mean time to recovery"],
	"key_findings": ["targeted injection finds faults faster"],
	"limitations": ["single cluster"]
}`

func TestExtract_MapsPayloadFields(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{content: validPayload}
	ex := newTestExtractor(provider, 2)

	paper := domain.NewPaper("Fault Injection Study", domain.SourceTypeArXiv)
	outcome, err := ex.Extract(context.Background(), []*domain.Paper{paper}, testTopic(), nil)
	require.NoError(t, err)
	require.Len(t, outcome.Data, 1)
	assert.Empty(t, outcome.Failures)

	data := outcome.Data[0]
	assert.Equal(t, paper.ID, data.PaperID)
	assert.Equal(t, "Evaluate fault injection strategies", data.Objectives)
	assert.Equal(t, "Controlled experiment on a service mesh", data.Methodology)
	assert.Equal(t, "experimental", data.StudyDesign)
	assert.Equal(t, "12 production services", data.Participants)
	assert.Equal(t, []string{"mean time to recovery"}, data.Outcomes)
	assert.Equal(t, []string{"targeted injection finds faults faster"}, data.KeyFindings)
	assert.Equal(t, []string{"single cluster"}, data.Limitations)
	assert.False(t, data.ExtractedAt.IsZero())
}

func TestExtract_ProviderFailureIsCollectedNotRaised(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{err: errors.New("connection refused")}
	ex := newTestExtractor(provider, 2)

	paper := domain.NewPaper("Unreachable Paper", domain.SourceTypeArXiv)
	outcome, err := ex.Extract(context.Background(), []*domain.Paper{paper}, testTopic(), nil)
	require.NoError(t, err)

	assert.Empty(t, outcome.Data)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, paper.ID.String(), outcome.Failures[0].PaperID)
	assert.Equal(t, "Unreachable Paper", outcome.Failures[0].Title)
	assert.Contains(t, outcome.Failures[0].Reason, "provider_error")
}

func TestExtract_MissingObjectivesFailsValidation(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{content: `{"methodology": "survey"}`}
	ex := newTestExtractor(provider, 2)

	paper := domain.NewPaper("Sparse Response", domain.SourceTypeArXiv)
	outcome, err := ex.Extract(context.Background(), []*domain.Paper{paper}, testTopic(), nil)
	require.NoError(t, err)

	assert.Empty(t, outcome.Data)
	require.Len(t, outcome.Failures, 1)
	assert.Contains(t, outcome.Failures[0].Reason, "missing_field")
}

func TestExtract_FullTextErrorFallsBackToAbstract(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{content: validPayload}
	ex := newTestExtractor(provider, 2)

	paper := domain.NewPaper("No Full Text Available", domain.SourceTypeArXiv)
	paper.Abstract = "An abstract only."

	outcome, err := ex.Extract(context.Background(), []*domain.Paper{paper}, testTopic(), mapTexts{})
	require.NoError(t, err)
	require.Len(t, outcome.Data, 1)
	assert.Empty(t, outcome.Failures)
}

func TestExtract_ConcurrentAggregation(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{content: validPayload}
	ex := newTestExtractor(provider, 8)

	papers := make([]*domain.Paper, 0, 40)
	for i := 0; i < 40; i++ {
		papers = append(papers, domain.NewPaper(fmt.Sprintf("Paper %d", i), domain.SourceTypeArXiv))
	}

	outcome, err := ex.Extract(context.Background(), papers, testTopic(), nil)
	require.NoError(t, err)
	assert.Len(t, outcome.Data, 40)
	assert.Empty(t, outcome.Failures)
	assert.Equal(t, 40, provider.callCount())
}

func TestExtract_ContextCancellation(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{content: validPayload}
	ex := newTestExtractor(provider, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	papers := []*domain.Paper{domain.NewPaper("Cancelled", domain.SourceTypeArXiv)}
	_, err := ex.Extract(ctx, papers, testTopic(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractionPrompt_TruncatesText(t *testing.T) {
	t.Parallel()

	paper := domain.NewPaper("Long Paper", domain.SourceTypeArXiv)
	long := make([]byte, maxExtractionTextChars+500)
	for i := range long {
		long[i] = 'a'
	}

	prompt := extractionPrompt(paper, string(long))
	assert.Less(t, len(prompt), maxExtractionTextChars+200)
	assert.Contains(t, prompt, "Long Paper")
}

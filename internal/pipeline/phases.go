package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/reviewkit/reviewkit/internal/analysis"
	"github.com/reviewkit/reviewkit/internal/dedup"
	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/extraction"
	"github.com/reviewkit/reviewkit/internal/papersources"
	"github.com/reviewkit/reviewkit/internal/screening"
	"github.com/reviewkit/reviewkit/internal/workflow"
	"github.com/reviewkit/reviewkit/internal/writing"
)

// state carries phase outputs through the run. Sequential phases hand off
// through it; the parallel analysis phases each write a distinct field.
type state struct {
	tc     *domain.TopicContext
	prisma *domain.PRISMACounts

	searched []*domain.Paper
	deduped  []*domain.Paper

	taResults  map[string]domain.ScreeningResult
	taIncluded []*domain.Paper

	ftResults []domain.ScreeningResult
	included  []*domain.Paper

	extracted  *extraction.Outcome
	quality    *analysis.QualityOutcome
	diagram    string
	viz        string
	manuscript *writing.Manuscript
}

func newState(tc *domain.TopicContext) *state {
	return &state{tc: tc, prisma: &domain.PRISMACounts{}}
}

// Checkpoint payloads. Every field needed to rebuild in-memory state on
// resume is serialized; everything else is rebuilt from configuration.
type searchPayload struct {
	Papers []*domain.Paper `json:"papers"`
}

type dedupPayload struct {
	Papers            []*domain.Paper `json:"papers"`
	DuplicatesRemoved int             `json:"duplicates_removed"`
}

type screeningPayload struct {
	Results  []domain.ScreeningResult `json:"results"`
	Included []*domain.Paper          `json:"included"`
}

type diagramPayload struct {
	Mermaid string `json:"mermaid"`
}

type vizPayload struct {
	Markdown string `json:"markdown"`
}

type manuscriptPayload struct {
	Sections map[writing.Section]string `json:"sections"`
}

type reportPayload struct {
	ReportPath  string `json:"report_path"`
	DiagramPath string `json:"diagram_path"`
}

func (p *Pipeline) bindHandlers(orch *workflow.Orchestrator) error {
	handlers := map[string]workflow.PhaseFunc{
		workflow.PhaseSearchDatabases: p.runSearch,
		workflow.PhaseDeduplication:   p.runDeduplication,
		workflow.PhaseTitleAbstract:   p.runTitleAbstract,
		workflow.PhaseFullText:        p.runFullText,
		workflow.PhaseDataExtraction:  p.runExtraction,
		workflow.PhaseQualityAssess:   p.runQuality,
		workflow.PhasePRISMADiagram:   p.runPRISMADiagram,
		workflow.PhaseVisualizations:  p.runVisualizations,
		workflow.PhaseManuscript:      p.runManuscript,
		workflow.PhaseReportAssembly:  p.runReportAssembly,
	}
	for name, fn := range handlers {
		if err := orch.Handle(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// searchQuery builds the database query from the topic's keywords, falling
// back to the topic itself when none are configured.
func (s *state) searchQuery() string {
	if len(s.tc.Keywords) > 0 {
		return strings.Join(s.tc.Keywords, " ")
	}
	return s.tc.Topic
}

func (p *Pipeline) runSearch(ctx context.Context) error {
	params := papersources.SearchParams{
		Query:      p.state.searchQuery(),
		YearFrom:   p.cfg.Workflow.DateFrom,
		YearTo:     p.cfg.Workflow.DateTo,
		MaxResults: p.cfg.Workflow.MaxResults,
	}

	results := p.sources.SearchAll(ctx, params)
	if len(results) == 0 {
		return fmt.Errorf("no enabled paper sources: %w", domain.ErrInvalidInput)
	}

	m := p.obs.Metrics
	var papers []*domain.Paper
	var failures []error
	for _, r := range results {
		label := string(r.Source)
		m.SourceRequestsTotal.WithLabelValues(label).Inc()

		if r.Error != nil {
			m.SourceRequestsFailed.WithLabelValues(label).Inc()
			p.obs.Logger.Warn().Err(r.Error).Str("source", label).Msg("source search failed")
			failures = append(failures, fmt.Errorf("%s: %w", label, r.Error))
			continue
		}

		m.SourceRequestDuration.WithLabelValues(label).Observe(r.Result.SearchDuration.Seconds())
		m.PapersBySource.WithLabelValues(label).Add(float64(len(r.Result.Papers)))
		m.PapersDiscovered.Add(float64(len(r.Result.Papers)))
		papers = append(papers, r.Result.Papers...)

		p.obs.Logger.Info().
			Str("source", label).
			Int("papers", len(r.Result.Papers)).
			Int("total_available", r.Result.TotalResults).
			Msg("source search complete")
	}

	if len(failures) == len(results) {
		return fmt.Errorf("every source search failed: %w", errors.Join(failures...))
	}

	p.state.searched = papers
	return p.state.prisma.Set(domain.PRISMAFound, len(papers))
}

func (p *Pipeline) runDeduplication(_ context.Context) error {
	result := dedup.Deduplicate(p.state.searched, dedup.DefaultCheckerConfig())

	p.obs.Metrics.PapersDuplicate.Add(float64(result.DuplicatesRemoved))
	p.obs.Logger.Info().
		Int("unique", len(result.Unique)).
		Int("duplicates_removed", result.DuplicatesRemoved).
		Msg("deduplication complete")

	p.state.deduped = result.Unique
	if err := p.state.prisma.Set(domain.PRISMADuplicatesRemoved, result.DuplicatesRemoved); err != nil {
		return err
	}
	return p.state.prisma.Set(domain.PRISMANoDupes, len(result.Unique))
}

func (p *Pipeline) runTitleAbstract(ctx context.Context) error {
	outcome, err := p.screener.ScreenTitleAbstract(ctx, p.state.deduped, p.state.tc, p.queue)
	if err != nil {
		return err
	}

	p.state.taIncluded = outcome.Included
	p.state.taResults = make(map[string]domain.ScreeningResult, len(outcome.Results))
	for _, r := range outcome.Results {
		p.state.taResults[r.PaperID.String()] = r
	}

	if err := p.state.prisma.Set(domain.PRISMAScreened, len(p.state.deduped)); err != nil {
		return err
	}
	return p.exportAdjudication()
}

func (p *Pipeline) runFullText(ctx context.Context) error {
	outcome, err := p.screener.ScreenFullText(ctx, p.state.taIncluded, p.state.tc, p.fetcher, p.state.taResults, p.queue)
	if err != nil {
		return err
	}

	p.state.ftResults = outcome.Results
	p.state.included = outcome.Included

	if err := p.state.prisma.Set(domain.PRISMAFullTextAssessed, len(p.state.taIncluded)); err != nil {
		return err
	}
	if err := p.state.prisma.Set(domain.PRISMAIncluded, len(outcome.Included)); err != nil {
		return err
	}
	return p.exportAdjudication()
}

// exportAdjudication rewrites the queue export after each screening stage
// so reviewers see uncertain papers as soon as they exist.
func (p *Pipeline) exportAdjudication() error {
	if p.queue.Len() == 0 {
		return nil
	}
	return p.queue.WriteFile(filepath.Join(p.ckpt.Dir(), screening.AdjudicationFilename))
}

func (p *Pipeline) runExtraction(ctx context.Context) error {
	outcome, err := p.extractor.Extract(ctx, p.state.included, p.state.tc, p.fetcher)
	if err != nil {
		return err
	}
	p.state.extracted = outcome
	for _, data := range outcome.Data {
		for _, finding := range data.KeyFindings {
			p.state.tc.AddFinding(finding)
		}
	}
	return nil
}

func (p *Pipeline) runQuality(ctx context.Context) error {
	var extracted []domain.ExtractedData
	if p.state.extracted != nil {
		extracted = p.state.extracted.Data
	}
	outcome, err := p.quality.Assess(ctx, p.state.included, extracted, p.state.tc)
	if err != nil {
		return err
	}
	p.state.quality = outcome
	p.state.tc.AddInsight(outcome.Summary())
	return nil
}

func (p *Pipeline) runPRISMADiagram(_ context.Context) error {
	p.state.diagram = writing.MermaidDiagram(p.state.prisma)
	return nil
}

func (p *Pipeline) runVisualizations(_ context.Context) error {
	p.state.viz = analysis.Visualizations(p.state.included)
	return nil
}

func (p *Pipeline) writerInput() *writing.Input {
	input := &writing.Input{
		Topic:          p.state.tc,
		Papers:         p.state.included,
		Prisma:         p.state.prisma,
		Visualizations: p.state.viz,
	}
	if p.state.extracted != nil {
		input.Extracted = p.state.extracted.Data
	}
	if p.state.quality != nil {
		input.QualitySummary = p.state.quality.Summary()
	}
	return input
}

func (p *Pipeline) runManuscript(ctx context.Context) error {
	m, err := p.writer.Draft(ctx, p.writerInput())
	if err != nil {
		return err
	}
	p.state.manuscript = m
	return nil
}

func (p *Pipeline) runReportAssembly(_ context.Context) error {
	report := writing.Assemble(p.state.manuscript, p.writerInput())

	outDir := p.cfg.Output.Directory
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	reportPath := filepath.Join(outDir, fmt.Sprintf("review_%s.md", p.state.tc.Slug))
	if err := os.WriteFile(reportPath, []byte(report.Markdown), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	diagram := p.state.diagram
	if diagram == "" {
		diagram = report.PRISMADiagram
	}
	diagramPath := filepath.Join(outDir, "prisma_diagram.mmd")
	if err := os.WriteFile(diagramPath, []byte(diagram), 0o644); err != nil {
		return fmt.Errorf("write prisma diagram: %w", err)
	}

	p.obs.Logger.Info().
		Str("report", reportPath).
		Str("diagram", diagramPath).
		Int("references", len(report.References)).
		Msg("report assembled")
	return nil
}

// payloadFor returns the serializable output of a finished phase for
// checkpointing.
func (p *Pipeline) payloadFor(phase string) any {
	s := p.state
	switch phase {
	case workflow.PhaseSearchDatabases:
		return &searchPayload{Papers: s.searched}
	case workflow.PhaseDeduplication:
		removed := s.prisma.Get(domain.PRISMADuplicatesRemoved)
		if removed < 0 {
			removed = 0
		}
		return &dedupPayload{Papers: s.deduped, DuplicatesRemoved: removed}
	case workflow.PhaseTitleAbstract:
		results := make([]domain.ScreeningResult, 0, len(s.taResults))
		for _, r := range s.taResults {
			results = append(results, r)
		}
		return &screeningPayload{Results: results, Included: s.taIncluded}
	case workflow.PhaseFullText:
		return &screeningPayload{Results: s.ftResults, Included: s.included}
	case workflow.PhaseDataExtraction:
		return s.extracted
	case workflow.PhaseQualityAssess:
		return s.quality
	case workflow.PhasePRISMADiagram:
		return &diagramPayload{Mermaid: s.diagram}
	case workflow.PhaseVisualizations:
		return &vizPayload{Markdown: s.viz}
	case workflow.PhaseManuscript:
		if s.manuscript == nil {
			return nil
		}
		return &manuscriptPayload{Sections: s.manuscript.Sections}
	case workflow.PhaseReportAssembly:
		return &reportPayload{
			ReportPath:  filepath.Join(p.cfg.Output.Directory, fmt.Sprintf("review_%s.md", s.tc.Slug)),
			DiagramPath: filepath.Join(p.cfg.Output.Directory, "prisma_diagram.mmd"),
		}
	default:
		return nil
	}
}

// restoreState rebuilds in-memory state from the checkpoints of completed
// phases, in execution order, without re-invoking any LLM call. A phase
// whose payload no longer decodes is dropped from completed along with
// every phase downstream of it, so the re-run never consumes the empty
// state a half-restored checkpoint would leave behind.
func (p *Pipeline) restoreState(completed map[string]bool) {
	invalid := make(map[string]bool)
	for _, phase := range p.registry.ExecutionOrder() {
		if !completed[phase] {
			invalid[phase] = true
			continue
		}

		depBroken := false
		for _, dep := range p.registry.Dependencies(phase) {
			if invalid[dep] {
				depBroken = true
				break
			}
		}
		if depBroken || !p.loadInto(phase) {
			invalid[phase] = true
			delete(completed, phase)
		}
	}
}

// loadInto loads one phase checkpoint into state. It reports false when
// the record is missing, corrupt, or its payload fails to decode; the
// caller re-runs the phase instead of failing the resume.
func (p *Pipeline) loadInto(phase string) bool {
	s := p.state

	var out any
	switch phase {
	case workflow.PhaseSearchDatabases:
		out = &searchPayload{}
	case workflow.PhaseDeduplication:
		out = &dedupPayload{}
	case workflow.PhaseTitleAbstract, workflow.PhaseFullText:
		out = &screeningPayload{}
	case workflow.PhaseDataExtraction:
		out = &extraction.Outcome{}
	case workflow.PhaseQualityAssess:
		out = &analysis.QualityOutcome{}
	case workflow.PhasePRISMADiagram:
		out = &diagramPayload{}
	case workflow.PhaseVisualizations:
		out = &vizPayload{}
	case workflow.PhaseManuscript:
		out = &manuscriptPayload{}
	default:
		return true
	}

	rec, err := p.ckpt.LoadPhaseData(phase, out)
	if err != nil {
		p.obs.Logger.Warn().Err(err).Str("phase", phase).Msg("checkpoint unreadable, phase will re-run")
		return false
	}

	if rec.PRISMACounts != nil {
		s.prisma = rec.PRISMACounts
	}
	if rec.TopicContext != nil {
		s.tc = rec.TopicContext
	}

	switch v := out.(type) {
	case *searchPayload:
		s.searched = v.Papers
	case *dedupPayload:
		s.deduped = v.Papers
	case *screeningPayload:
		if phase == workflow.PhaseTitleAbstract {
			s.taIncluded = v.Included
			s.taResults = make(map[string]domain.ScreeningResult, len(v.Results))
			for _, r := range v.Results {
				s.taResults[r.PaperID.String()] = r
			}
		} else {
			s.ftResults = v.Results
			s.included = v.Included
		}
	case *extraction.Outcome:
		s.extracted = v
	case *analysis.QualityOutcome:
		s.quality = v
	case *diagramPayload:
		s.diagram = v.Mermaid
	case *vizPayload:
		s.viz = v.Markdown
	case *manuscriptPayload:
		if v.Sections != nil {
			s.manuscript = &writing.Manuscript{Sections: v.Sections}
		}
	}
	return true
}

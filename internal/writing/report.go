package writing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// prismaDiagramFilename is the Mermaid file written next to the report.
const prismaDiagramFilename = "prisma_diagram.mmd"

var citeMarkerRe = regexp.MustCompile(`\[CITE:([^\]\s]+)\]`)

// Report is the assembled review output.
type Report struct {
	// Markdown is the full report document.
	Markdown string

	// References lists the cited papers in citation-number order.
	References []*domain.Paper

	// PRISMADiagram is the Mermaid source for the funnel flowchart,
	// written alongside the report as prisma_diagram.mmd.
	PRISMADiagram string
}

// Assemble builds the final report from the drafted manuscript. Sections
// appear in a fixed order, citation markers are replaced with numbered
// references, and the PRISMA diagram is referenced from its own section.
func Assemble(m *Manuscript, input *Input) *Report {
	sections, refs := substituteCitations(m, input.Papers)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Systematic Review: %s\n\n", input.Topic.Topic)

	writeSection(&sb, "Abstract", sections[SectionAbstract])
	writeSection(&sb, "Introduction", sections[SectionIntroduction])
	writeSection(&sb, "Methods", sections[SectionMethods])
	writeSection(&sb, "PRISMA Flow Diagram",
		fmt.Sprintf("The PRISMA flow diagram for this review is available as `%s`.", prismaDiagramFilename))
	writeSection(&sb, "Results", sections[SectionResults])
	if input.Visualizations != "" {
		writeSection(&sb, "Visualizations", input.Visualizations)
	}
	writeSection(&sb, "Discussion", sections[SectionDiscussion])
	writeSection(&sb, "References", formatReferences(refs))
	writeSection(&sb, "Summary", sections[SectionSummary])

	return &Report{
		Markdown:      sb.String(),
		References:    refs,
		PRISMADiagram: MermaidDiagram(input.Prisma),
	}
}

func writeSection(sb *strings.Builder, heading, body string) {
	if body == "" {
		return
	}
	fmt.Fprintf(sb, "## %s\n\n%s\n\n", heading, body)
}

// substituteCitations replaces [CITE:<paper-id>] markers with numbered
// citations. Numbers are assigned in order of first appearance, scanning
// sections in report order so numbering is deterministic. Markers naming
// an unknown paper become [?].
func substituteCitations(m *Manuscript, papers []*domain.Paper) (map[Section]string, []*domain.Paper) {
	byID := make(map[string]*domain.Paper, len(papers))
	for _, p := range papers {
		byID[p.ID.String()] = p
	}

	numbers := make(map[string]int)
	var refs []*domain.Paper

	order := []Section{
		SectionAbstract,
		SectionIntroduction,
		SectionMethods,
		SectionResults,
		SectionDiscussion,
		SectionSummary,
	}

	out := make(map[Section]string, len(order))
	for _, section := range order {
		out[section] = citeMarkerRe.ReplaceAllStringFunc(m.Sections[section], func(marker string) string {
			id := citeMarkerRe.FindStringSubmatch(marker)[1]
			paper, ok := byID[id]
			if !ok {
				return "[?]"
			}
			n, seen := numbers[id]
			if !seen {
				refs = append(refs, paper)
				n = len(refs)
				numbers[id] = n
			}
			return fmt.Sprintf("[%d]", n)
		})
	}

	return out, refs
}

func formatReferences(refs []*domain.Paper) string {
	if len(refs) == 0 {
		return "No studies were cited in the manuscript."
	}

	var sb strings.Builder
	for i, paper := range refs {
		fmt.Fprintf(&sb, "%d. %s", i+1, formatReference(paper))
		if i < len(refs)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func formatReference(paper *domain.Paper) string {
	var parts []string

	if names := authorList(paper); names != "" {
		parts = append(parts, names)
	}
	title := paper.Title
	if paper.Year > 0 {
		title = fmt.Sprintf("%s (%d)", title, paper.Year)
	}
	parts = append(parts, title)

	if paper.Journal != "" {
		parts = append(parts, paper.Journal)
	}
	switch {
	case paper.DOI != "":
		parts = append(parts, "https://doi.org/"+paper.DOI)
	case paper.URL != "":
		parts = append(parts, paper.URL)
	}

	return strings.Join(parts, ". ") + "."
}

func authorList(paper *domain.Paper) string {
	names := make([]string, 0, len(paper.Authors))
	for _, a := range paper.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	if len(names) > 3 {
		return strings.Join(names[:3], ", ") + " et al"
	}
	return strings.Join(names, ", ")
}

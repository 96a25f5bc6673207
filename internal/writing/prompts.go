package writing

import (
	"fmt"
	"strings"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// maxStudySummaries bounds how many per-paper summaries are embedded in a
// section prompt.
const maxStudySummaries = 50

func writerSystemPrompt(tc *domain.TopicContext) string {
	var sb strings.Builder
	sb.WriteString("You are a systematic review manuscript writer.\n")
	fmt.Fprintf(&sb, "Review topic: %s\n", tc.Topic)
	if tc.Domain != "" {
		fmt.Fprintf(&sb, "Domain: %s\n", tc.Domain)
	}
	if tc.ResearchQuestion != "" {
		fmt.Fprintf(&sb, "Research question: %s\n", tc.ResearchQuestion)
	}
	sb.WriteString("\nWrite in formal academic prose, in Markdown, without top-level headings. " +
		"Cite included studies with the marker [CITE:<paper-id>] using the paper ids provided; " +
		"citations are substituted with numbered references during assembly. " +
		"Do not fabricate studies or results.")
	return sb.String()
}

var sectionInstructions = map[Section]string{
	SectionAbstract: "Write the Abstract: a single paragraph covering the objective, " +
		"search scope, number of included studies, and principal findings.",
	SectionIntroduction: "Write the Introduction: motivate the topic, state the research " +
		"question, and outline what the review covers.",
	SectionMethods: "Write the Methods section: describe the search strategy, the " +
		"databases queried, the two-stage screening process, and the data extraction " +
		"approach. Report the PRISMA counts provided.",
	SectionResults: "Write the Results section: synthesize the extracted study data, " +
		"grouping findings by theme and citing the contributing studies.",
	SectionDiscussion: "Write the Discussion section: interpret the findings, note " +
		"limitations of the evidence base, and identify open questions.",
	SectionSummary: "Write a short concluding Summary of the review's main takeaways.",
}

func sectionPrompt(section Section, input *Input, m *Manuscript) string {
	var sb strings.Builder
	sb.WriteString(sectionInstructions[section])
	sb.WriteString("\n\n")

	writePrismaCounts(&sb, input.Prisma)
	writeStudySummaries(&sb, input)

	if input.QualitySummary != "" && (section == SectionResults || section == SectionDiscussion) {
		fmt.Fprintf(&sb, "Quality assessment summary:\n%s\n\n", input.QualitySummary)
	}

	writePriorSections(&sb, section, m)
	return sb.String()
}

func writePrismaCounts(sb *strings.Builder, prisma *domain.PRISMACounts) {
	if prisma == nil {
		return
	}

	stages := []struct {
		label string
		stage string
	}{
		{"records identified", domain.PRISMAFound},
		{"duplicates removed", domain.PRISMADuplicatesRemoved},
		{"records after deduplication", domain.PRISMANoDupes},
		{"records screened on title/abstract", domain.PRISMAScreened},
		{"full-text articles assessed", domain.PRISMAFullTextAssessed},
		{"studies included", domain.PRISMAIncluded},
	}

	wrote := false
	for _, s := range stages {
		if n := prisma.Get(s.stage); n >= 0 {
			if !wrote {
				sb.WriteString("PRISMA counts:\n")
				wrote = true
			}
			fmt.Fprintf(sb, "- %s: %d\n", s.label, n)
		}
	}
	if wrote {
		sb.WriteString("\n")
	}
}

func writeStudySummaries(sb *strings.Builder, input *Input) {
	if len(input.Papers) == 0 {
		return
	}

	extracted := make(map[string]*domain.ExtractedData, len(input.Extracted))
	for i := range input.Extracted {
		extracted[input.Extracted[i].PaperID.String()] = &input.Extracted[i]
	}

	sb.WriteString("Included studies:\n")
	for i, paper := range input.Papers {
		if i >= maxStudySummaries {
			fmt.Fprintf(sb, "(and %d more studies)\n", len(input.Papers)-i)
			break
		}

		fmt.Fprintf(sb, "- [%s] %s", paper.ID, paper.Title)
		if paper.Year > 0 {
			fmt.Fprintf(sb, " (%d)", paper.Year)
		}
		sb.WriteString("\n")

		if data, ok := extracted[paper.ID.String()]; ok {
			if data.Objectives != "" {
				fmt.Fprintf(sb, "  objectives: %s\n", data.Objectives)
			}
			if data.StudyDesign != "" {
				fmt.Fprintf(sb, "  design: %s\n", data.StudyDesign)
			}
			if len(data.KeyFindings) > 0 {
				fmt.Fprintf(sb, "  key findings: %s\n", strings.Join(data.KeyFindings, "; "))
			}
		}
	}
	sb.WriteString("\n")
}

// writePriorSections gives later sections the already-drafted text so the
// manuscript stays coherent.
func writePriorSections(sb *strings.Builder, current Section, m *Manuscript) {
	wrote := false
	for _, section := range draftOrder {
		if section == current {
			break
		}
		text, ok := m.Sections[section]
		if !ok {
			continue
		}
		if !wrote {
			sb.WriteString("Sections drafted so far:\n\n")
			wrote = true
		}
		fmt.Fprintf(sb, "[%s]\n%s\n\n", section, text)
	}
}

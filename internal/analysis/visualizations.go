package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// Visualizations renders Mermaid charts over the included studies:
// a pie of papers by source and a bar chart of papers by publication
// year. Output is deterministic so reruns produce identical reports.
func Visualizations(papers []*domain.Paper) string {
	if len(papers) == 0 {
		return ""
	}

	var sb strings.Builder
	writeSourcePie(&sb, papers)
	writeYearChart(&sb, papers)
	return strings.TrimRight(sb.String(), "\n")
}

func writeSourcePie(sb *strings.Builder, papers []*domain.Paper) {
	counts := make(map[domain.SourceType]int)
	for _, p := range papers {
		counts[p.Source]++
	}

	sources := make([]domain.SourceType, 0, len(counts))
	for s := range counts {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	sb.WriteString("### Included studies by source\n\n")
	sb.WriteString("```mermaid\npie title Included studies by source\n")
	for _, s := range sources {
		fmt.Fprintf(sb, "    \"%s\" : %d\n", s, counts[s])
	}
	sb.WriteString("```\n\n")
}

func writeYearChart(sb *strings.Builder, papers []*domain.Paper) {
	counts := make(map[int]int)
	for _, p := range papers {
		if p.Year > 0 {
			counts[p.Year]++
		}
	}
	if len(counts) == 0 {
		return
	}

	years := make([]int, 0, len(counts))
	for y := range counts {
		years = append(years, y)
	}
	sort.Ints(years)

	labels := make([]string, 0, len(years))
	values := make([]string, 0, len(years))
	for _, y := range years {
		labels = append(labels, fmt.Sprintf("%d", y))
		values = append(values, fmt.Sprintf("%d", counts[y]))
	}

	sb.WriteString("### Included studies by year\n\n")
	sb.WriteString("```mermaid\nxychart-beta\n")
	sb.WriteString("    title \"Included studies by year\"\n")
	fmt.Fprintf(sb, "    x-axis [%s]\n", strings.Join(labels, ", "))
	fmt.Fprintf(sb, "    bar [%s]\n", strings.Join(values, ", "))
	sb.WriteString("```\n\n")
}

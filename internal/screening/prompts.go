package screening

import (
	"fmt"
	"strings"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// maxFullTextChars bounds how much retrieved document text is sent to the
// provider in a full-text screening call.
const maxFullTextChars = 12000

func systemPrompt(tc *domain.TopicContext) string {
	var sb strings.Builder
	sb.WriteString("You are a systematic review screening assistant.\n")
	fmt.Fprintf(&sb, "Review topic: %s\n", tc.Topic)
	if tc.Domain != "" {
		fmt.Fprintf(&sb, "Domain: %s\n", tc.Domain)
	}
	if tc.ResearchQuestion != "" {
		fmt.Fprintf(&sb, "Research question: %s\n", tc.ResearchQuestion)
	}
	sb.WriteString("\nDecide whether each paper should be included in the review. " +
		"Respond with a JSON object containing the fields \"decision\" " +
		"(include, exclude, or uncertain), \"confidence\" (0.0 to 1.0), " +
		"\"reasoning\", and optionally \"exclusion_reason\". " +
		"Use uncertain when the available text does not support a confident decision.")
	return sb.String()
}

func titleAbstractPrompt(paper *domain.Paper, criteria Criteria) string {
	var sb strings.Builder
	writeCriteria(&sb, criteria)

	sb.WriteString("Screen the following paper on its title and abstract.\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", paper.Title)
	if len(paper.Authors) > 0 {
		fmt.Fprintf(&sb, "Authors: %s\n", authorNames(paper))
	}
	if paper.Year > 0 {
		fmt.Fprintf(&sb, "Year: %d\n", paper.Year)
	}
	if paper.Abstract != "" {
		fmt.Fprintf(&sb, "Abstract: %s\n", paper.Abstract)
	} else {
		sb.WriteString("Abstract: (not available)\n")
	}
	if len(paper.Keywords) > 0 {
		fmt.Fprintf(&sb, "Keywords: %s\n", strings.Join(paper.Keywords, ", "))
	}
	return sb.String()
}

func fullTextPrompt(paper *domain.Paper, criteria Criteria, text string) string {
	var sb strings.Builder
	writeCriteria(&sb, criteria)

	sb.WriteString("Screen the following paper on its full text. " +
		"The title/abstract stage already passed it; confirm or reverse that decision.\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", paper.Title)

	if len(text) > maxFullTextChars {
		text = text[:maxFullTextChars]
	}
	fmt.Fprintf(&sb, "\nFull text:\n%s\n", text)
	return sb.String()
}

func writeCriteria(sb *strings.Builder, criteria Criteria) {
	if len(criteria.Inclusion) > 0 {
		sb.WriteString("Inclusion criteria:\n")
		for _, c := range criteria.Inclusion {
			fmt.Fprintf(sb, "- %s\n", c)
		}
	}
	if len(criteria.Exclusion) > 0 {
		sb.WriteString("Exclusion criteria:\n")
		for _, c := range criteria.Exclusion {
			fmt.Fprintf(sb, "- %s\n", c)
		}
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
}

func authorNames(paper *domain.Paper) string {
	names := make([]string, 0, len(paper.Authors))
	for _, a := range paper.Authors {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

package extraction

import (
	"fmt"
	"strings"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// maxExtractionTextChars bounds how much retrieved document text is sent
// to the provider in one extraction call.
const maxExtractionTextChars = 16000

func extractionSystemPrompt(tc *domain.TopicContext) string {
	var sb strings.Builder
	sb.WriteString("You are a systematic review data extraction assistant.\n")
	fmt.Fprintf(&sb, "Review topic: %s\n", tc.Topic)
	if tc.Domain != "" {
		fmt.Fprintf(&sb, "Domain: %s\n", tc.Domain)
	}
	if tc.ResearchQuestion != "" {
		fmt.Fprintf(&sb, "Research question: %s\n", tc.ResearchQuestion)
	}
	sb.WriteString("\nExtract structured study data from the paper. " +
		"Respond with a JSON object containing the fields \"objectives\", " +
		"\"methodology\", \"study_design\", \"participants\", " +
		"\"outcomes\" (array of strings), \"key_findings\" (array of strings), " +
		"and \"limitations\" (array of strings). " +
		"Leave fields the paper does not report as empty strings or empty arrays; " +
		"never invent data.")
	return sb.String()
}

func extractionPrompt(paper *domain.Paper, text string) string {
	var sb strings.Builder
	sb.WriteString("Extract study data from the following paper.\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", paper.Title)
	if paper.Year > 0 {
		fmt.Fprintf(&sb, "Year: %d\n", paper.Year)
	}
	if paper.Abstract != "" {
		fmt.Fprintf(&sb, "Abstract: %s\n", paper.Abstract)
	}

	if text != "" {
		if len(text) > maxExtractionTextChars {
			text = text[:maxExtractionTextChars]
		}
		fmt.Fprintf(&sb, "\nFull text:\n%s\n", text)
	}
	return sb.String()
}

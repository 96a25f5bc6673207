package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reviewkit/reviewkit/internal/domain"
)

func TestVisualizations_Deterministic(t *testing.T) {
	t.Parallel()

	p1 := domain.NewPaper("A", domain.SourceTypeArXiv)
	p1.Year = 2021
	p2 := domain.NewPaper("B", domain.SourceTypePubMed)
	p2.Year = 2023
	p3 := domain.NewPaper("C", domain.SourceTypeArXiv)
	p3.Year = 2021

	papers := []*domain.Paper{p1, p2, p3}

	first := Visualizations(papers)
	assert.Equal(t, first, Visualizations(papers))

	assert.Contains(t, first, `"arxiv" : 2`)
	assert.Contains(t, first, `"pubmed" : 1`)
	assert.Contains(t, first, "x-axis [2021, 2023]")
	assert.Contains(t, first, "bar [2, 1]")

	// Sources sort alphabetically regardless of input order.
	assert.Less(t, strings.Index(first, `"arxiv"`), strings.Index(first, `"pubmed"`))
}

func TestVisualizations_NoYearsOmitsChart(t *testing.T) {
	t.Parallel()

	paper := domain.NewPaper("Undated", domain.SourceTypeOpenAlex)
	out := Visualizations([]*domain.Paper{paper})

	assert.Contains(t, out, "Included studies by source")
	assert.NotContains(t, out, "xychart")
}

func TestVisualizations_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Visualizations(nil))
}

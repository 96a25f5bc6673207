package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewkit/reviewkit/internal/domain"
)

func paperWith(title, doi string, authors ...string) *domain.Paper {
	p := domain.NewPaper(title, domain.SourceTypeArXiv)
	p.DOI = doi
	for _, a := range authors {
		p.Authors = append(p.Authors, domain.Author{Name: a})
	}
	return p
}

func TestChecker_DOIMatch(t *testing.T) {
	t.Parallel()
	c := NewChecker(DefaultCheckerConfig())

	first := paperWith("Original Title", "10.1000/xyz123", "John Smith")
	require.False(t, c.Check(first).IsDuplicate)

	// Completely different title, same DOI.
	dup := paperWith("Different Rendering Of The Title", "10.1000/XYZ123", "J. Smith")
	result := c.Check(dup)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, first.ID, result.DuplicateOf)
	assert.Equal(t, 1.0, result.Score)
}

func TestChecker_DOIPrefixesNormalized(t *testing.T) {
	t.Parallel()
	c := NewChecker(DefaultCheckerConfig())

	first := paperWith("Paper A", "https://doi.org/10.1000/abc", "A. Author")
	require.False(t, c.Check(first).IsDuplicate)

	dup := paperWith("Paper B Entirely Unrelated", "doi:10.1000/abc")
	assert.True(t, c.Check(dup).IsDuplicate)
}

func TestChecker_ExactTitleMatch(t *testing.T) {
	t.Parallel()
	c := NewChecker(DefaultCheckerConfig())

	first := paperWith("Deep Learning for Code Review", "", "Jane Doe")
	require.False(t, c.Check(first).IsDuplicate)

	// Case and punctuation differences normalize away.
	dup := paperWith("Deep  Learning for Code-Review!", "")
	result := c.Check(dup)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, first.ID, result.DuplicateOf)
}

func TestChecker_FuzzyTitleNeedsAuthorOverlap(t *testing.T) {
	t.Parallel()
	c := NewChecker(CheckerConfig{TitleThreshold: 0.7, AuthorThreshold: 0.5})

	first := paperWith("Chaos Engineering in Production Distributed Systems", "",
		"Ali Basiri", "Niosha Behnam")
	require.False(t, c.Check(first).IsDuplicate)

	// Near-identical title, same authors: duplicate.
	sameAuthors := paperWith("Chaos Engineering in Production Distributed Systems Revisited", "",
		"A. Basiri", "N. Behnam")
	assert.True(t, c.Check(sameAuthors).IsDuplicate)

	// Near-identical title, different authors: a different paper.
	otherAuthors := paperWith("Chaos Engineering in Large Production Distributed Systems", "",
		"Maria Garcia", "Wei Chen")
	assert.False(t, c.Check(otherAuthors).IsDuplicate)
}

func TestChecker_NoTitleNoMatch(t *testing.T) {
	t.Parallel()
	c := NewChecker(DefaultCheckerConfig())

	require.False(t, c.Check(paperWith("", "")).IsDuplicate)
	require.False(t, c.Check(paperWith("", "")).IsDuplicate)
}

func TestDeduplicate(t *testing.T) {
	t.Parallel()

	a := paperWith("Paper Alpha", "10.1/alpha", "John Smith")
	b := paperWith("Paper Beta", "", "Jane Doe")
	dupOfA := paperWith("Paper Alpha", "10.1/alpha", "J. Smith")
	dupOfB := paperWith("Paper Beta", "")

	result := Deduplicate([]*domain.Paper{a, b, dupOfA, dupOfB}, DefaultCheckerConfig())

	require.Len(t, result.Unique, 2)
	assert.Equal(t, a.ID, result.Unique[0].ID)
	assert.Equal(t, b.ID, result.Unique[1].ID)
	assert.Equal(t, 2, result.DuplicatesRemoved)
	assert.Equal(t, a.ID, result.DuplicateOf[dupOfA.ID])
	assert.Equal(t, b.ID, result.DuplicateOf[dupOfB.ID])
}

func TestDeduplicate_MergesAffiliations(t *testing.T) {
	t.Parallel()

	original := paperWith("Paper Alpha", "10.1/alpha")
	original.Authors = []domain.Author{{Name: "John Smith"}}

	dup := paperWith("Paper Alpha", "10.1/alpha")
	dup.Authors = []domain.Author{{Name: "John Smith", Affiliation: "MIT"}}

	result := Deduplicate([]*domain.Paper{original, dup}, DefaultCheckerConfig())

	require.Len(t, result.Unique, 1)
	assert.Equal(t, "MIT", result.Unique[0].Authors[0].Affiliation)
}

func TestTitleOverlap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical", "deep learning code review", "deep learning code review", 1.0},
		{"disjoint", "chaos engineering", "quantum computing", 0.0},
		{"empty", "", "deep learning", 0.0},
		{"half overlap", "alpha beta", "beta gamma", 1.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, titleOverlap(tt.a, tt.b), 1e-9)
			// Symmetric.
			assert.InDelta(t, titleOverlap(tt.a, tt.b), titleOverlap(tt.b, tt.a), 1e-9)
		})
	}
}

// Package dedup detects duplicate papers across sources: DOI matches are
// exact, everything else is fuzzy title overlap confirmed by author-name
// similarity.
package dedup

import (
	"strings"

	"github.com/google/uuid"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// CheckerConfig holds the thresholds for duplicate detection.
type CheckerConfig struct {
	// TitleThreshold is the token-overlap score above which two normalized
	// titles are considered the same work (e.g. 0.9).
	TitleThreshold float64

	// AuthorThreshold is the author overlap score above which two papers
	// with matching titles are considered duplicates (e.g. 0.5).
	AuthorThreshold float64
}

// DefaultCheckerConfig returns the standard thresholds.
func DefaultCheckerConfig() CheckerConfig {
	return CheckerConfig{
		TitleThreshold:  0.9,
		AuthorThreshold: 0.5,
	}
}

// CheckResult contains the result of a duplicate check for a single paper.
type CheckResult struct {
	// IsDuplicate indicates whether the paper duplicates a previously
	// checked paper.
	IsDuplicate bool

	// DuplicateOf is the ID of the earlier paper if duplicate.
	DuplicateOf uuid.UUID

	// Score is the title similarity of the match (1.0 for DOI matches).
	Score float64
}

// Checker performs duplicate detection across the papers of one search run.
// DOI matches are exact; papers without a shared DOI are compared by fuzzy
// title overlap confirmed with author overlap. The checker is stateful:
// each checked paper becomes a candidate for subsequent checks.
type Checker struct {
	cfg CheckerConfig

	byDOI   map[string]*domain.Paper
	byTitle map[string]*domain.Paper
	seen    []*domain.Paper
}

// NewChecker creates an empty Checker.
func NewChecker(cfg CheckerConfig) *Checker {
	return &Checker{
		cfg:     cfg,
		byDOI:   make(map[string]*domain.Paper),
		byTitle: make(map[string]*domain.Paper),
	}
}

// Check determines whether the paper duplicates one already checked, and
// registers it as a future candidate either way.
//
// Matching order:
//  1. DOI exact match (case-insensitive).
//  2. Exact normalized-title match.
//  3. Fuzzy title overlap above TitleThreshold, confirmed by author overlap
//     above AuthorThreshold. Papers with no author data on either side fall
//     back to title overlap alone.
func (c *Checker) Check(paper *domain.Paper) CheckResult {
	defer c.add(paper)

	if doi := normalizeDOI(paper.DOI); doi != "" {
		if prior, ok := c.byDOI[doi]; ok {
			return CheckResult{IsDuplicate: true, DuplicateOf: prior.ID, Score: 1.0}
		}
	}

	title := domain.NormalizeTitle(paper.Title)
	if title == "" {
		return CheckResult{}
	}
	if prior, ok := c.byTitle[title]; ok {
		return CheckResult{IsDuplicate: true, DuplicateOf: prior.ID, Score: 1.0}
	}

	for _, prior := range c.seen {
		score := titleOverlap(title, domain.NormalizeTitle(prior.Title))
		if score < c.cfg.TitleThreshold {
			continue
		}
		if len(paper.Authors) == 0 || len(prior.Authors) == 0 {
			return CheckResult{IsDuplicate: true, DuplicateOf: prior.ID, Score: score}
		}
		if AuthorOverlap(paper.Authors, prior.Authors) >= c.cfg.AuthorThreshold {
			return CheckResult{IsDuplicate: true, DuplicateOf: prior.ID, Score: score}
		}
	}

	return CheckResult{}
}

func (c *Checker) add(paper *domain.Paper) {
	if doi := normalizeDOI(paper.DOI); doi != "" {
		if _, ok := c.byDOI[doi]; !ok {
			c.byDOI[doi] = paper
		}
	}
	if title := domain.NormalizeTitle(paper.Title); title != "" {
		if _, ok := c.byTitle[title]; !ok {
			c.byTitle[title] = paper
		}
		c.seen = append(c.seen, paper)
	}
}

// Result summarizes a deduplication pass.
type Result struct {
	// Unique holds the surviving papers in input order.
	Unique []*domain.Paper

	// DuplicatesRemoved is the number of papers dropped.
	DuplicatesRemoved int

	// DuplicateOf maps each removed paper's ID to the paper it duplicated.
	DuplicateOf map[uuid.UUID]uuid.UUID
}

// Deduplicate filters duplicates out of papers, keeping the first
// occurrence of each work. The first occurrence also wins metadata: later
// duplicates only fill in author affiliations the original lacks.
func Deduplicate(papers []*domain.Paper, cfg CheckerConfig) *Result {
	checker := NewChecker(cfg)
	result := &Result{DuplicateOf: make(map[uuid.UUID]uuid.UUID)}
	originals := make(map[uuid.UUID]*domain.Paper)

	for _, paper := range papers {
		check := checker.Check(paper)
		if !check.IsDuplicate {
			result.Unique = append(result.Unique, paper)
			originals[paper.ID] = paper
			continue
		}

		result.DuplicatesRemoved++
		result.DuplicateOf[paper.ID] = check.DuplicateOf

		if original, ok := originals[check.DuplicateOf]; ok {
			mergeAffiliations(original, paper)
		}
	}

	return result
}

// mergeAffiliations copies affiliation data from a duplicate onto the
// original for authors the original lists without affiliations.
func mergeAffiliations(original, duplicate *domain.Paper) {
	affiliations := make(map[string]string)
	for _, author := range duplicate.Authors {
		if author.Affiliation != "" {
			affiliations[NormalizeName(author.Name)] = author.Affiliation
		}
	}
	if len(affiliations) == 0 {
		return
	}

	for i, author := range original.Authors {
		if author.Affiliation != "" {
			continue
		}
		if aff, ok := affiliations[NormalizeName(author.Name)]; ok {
			original.Authors[i].Affiliation = aff
		}
	}
}

// titleOverlap computes a Jaccard word-overlap score between two normalized
// titles.
func titleOverlap(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	wordsA := strings.Fields(a)
	setB := make(map[string]bool)
	for _, w := range strings.Fields(b) {
		setB[w] = true
	}

	setA := make(map[string]bool)
	shared := 0
	for _, w := range wordsA {
		if setA[w] {
			continue
		}
		setA[w] = true
		if setB[w] {
			shared++
		}
	}

	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0.0
	}
	return float64(shared) / float64(union)
}

func normalizeDOI(doi string) string {
	doi = strings.ToLower(strings.TrimSpace(doi))
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return doi
}

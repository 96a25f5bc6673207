package dedup

import (
	"strings"
	"unicode"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// NormalizeName canonicalizes an author name for comparison: lowercase,
// "Last, First" reordered to given-name-first, punctuation dropped,
// whitespace collapsed.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	if last, first, found := strings.Cut(name, ","); found {
		name = first + " " + last
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, name)
	return strings.Join(strings.Fields(name), " ")
}

// AuthorOverlap scores how much two author lists agree, from 0.0 (disjoint)
// to 1.0 (the same people). Each author on the shorter list is greedily
// paired with the best-scoring unclaimed author on the longer one, and the
// pair scores feed a Jaccard-style ratio, so authors present on only one
// side pull the score down.
func AuthorOverlap(a, b []domain.Author) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	shorter, longer := normalizeAll(a), normalizeAll(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	claimed := make([]bool, len(longer))
	pairs := 0
	total := 0.0
	for _, name := range shorter {
		best, bestIdx := 0.0, -1
		for i, candidate := range longer {
			if claimed[i] {
				continue
			}
			if score := nameScore(name, candidate); score > best {
				best, bestIdx = score, i
			}
		}
		if bestIdx >= 0 {
			claimed[bestIdx] = true
			pairs++
			total += best
		}
	}

	return total / float64(len(a)+len(b)-pairs)
}

// nameScore rates two normalized names, surname first: different surnames
// score 0.0. With a shared surname, a missing given name on either side
// scores 0.7, an exact given-name match 1.0, an initial match 0.9, and
// anything else 0.3 (likely different people, possibly siblings or typos).
func nameScore(a, b string) float64 {
	aw, bw := strings.Fields(a), strings.Fields(b)
	if len(aw) == 0 || len(bw) == 0 {
		return 0.0
	}
	if aw[len(aw)-1] != bw[len(bw)-1] {
		return 0.0
	}
	if len(aw) == 1 || len(bw) == 1 {
		return 0.7
	}

	first, other := aw[0], bw[0]
	switch {
	case first == other:
		return 1.0
	case first[0] == other[0] && (len(first) == 1 || len(other) == 1):
		return 0.9
	default:
		return 0.3
	}
}

func normalizeAll(authors []domain.Author) []string {
	names := make([]string, len(authors))
	for i, a := range authors {
		names[i] = NormalizeName(a.Name)
	}
	return names
}

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Author represents a paper author with optional affiliation.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	Country     string `json:"country,omitempty"`
}

// String returns a formatted string representation of the author.
func (a Author) String() string {
	var sb strings.Builder
	sb.WriteString(a.Name)

	if a.Affiliation != "" {
		sb.WriteString(" (")
		sb.WriteString(a.Affiliation)
		sb.WriteString(")")
	}

	return sb.String()
}

// Paper is a bibliographic record discovered by a database search.
// Papers are immutable after creation except for enrichment backfill
// (EnrichAffiliations) performed before screening.
type Paper struct {
	ID              uuid.UUID  `json:"id"`
	CanonicalID     string     `json:"canonical_id"`
	Title           string     `json:"title"`
	Abstract        string     `json:"abstract"`
	Authors         []Author   `json:"authors"`
	Year            int        `json:"year"`
	DOI             string     `json:"doi,omitempty"`
	Journal         string     `json:"journal,omitempty"`
	Source          SourceType `json:"source"`
	URL             string     `json:"url,omitempty"`
	Keywords        []string   `json:"keywords,omitempty"`
	Country         string     `json:"country,omitempty"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	RetrievedAt     time.Time  `json:"retrieved_at"`
}

// NewPaper creates a Paper with a fresh ID and a canonical identifier
// derived from its DOI (or, failing that, a normalized title).
func NewPaper(title string, source SourceType) *Paper {
	p := &Paper{
		ID:          uuid.New(),
		Title:       title,
		Source:      source,
		RetrievedAt: time.Now().UTC(),
	}
	p.CanonicalID = CanonicalID(p.DOI, p.Title)
	return p
}

// CanonicalID derives the identity key used for deduplication.
// Priority: DOI (lowercased) > normalized title. Returns empty string
// when neither is available.
func CanonicalID(doi, title string) string {
	if d := strings.TrimSpace(doi); d != "" {
		return "doi:" + strings.ToLower(d)
	}
	if t := NormalizeTitle(title); t != "" {
		return "title:" + t
	}
	return ""
}

// NormalizeTitle lowercases a title and collapses every run of
// non-alphanumeric characters to a single space, for fuzzy identity
// comparison.
func NormalizeTitle(title string) string {
	var sb strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			sb.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// HasIdentifier returns true if the paper has at least one identifier.
func (p *Paper) HasIdentifier() bool {
	return p.CanonicalID != ""
}

// ScreeningText returns the text a screening stage should examine:
// title plus abstract plus author keywords.
func (p *Paper) ScreeningText() string {
	parts := make([]string, 0, 3)
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	if p.Abstract != "" {
		parts = append(parts, p.Abstract)
	}
	if len(p.Keywords) > 0 {
		parts = append(parts, strings.Join(p.Keywords, " "))
	}
	return strings.Join(parts, "\n")
}

// EnrichAffiliations backfills author affiliations and the paper country.
// This is the only permitted mutation after creation.
func (p *Paper) EnrichAffiliations(affiliations map[string]string, country string) {
	for i := range p.Authors {
		if p.Authors[i].Affiliation == "" {
			if aff, ok := affiliations[p.Authors[i].Name]; ok {
				p.Authors[i].Affiliation = aff
			}
		}
	}
	if p.Country == "" {
		p.Country = country
	}
}

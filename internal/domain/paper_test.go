package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		name     string
		doi      string
		title    string
		expected string
	}{
		{"doi preferred", "10.1000/XYZ123", "Some Title", "doi:10.1000/xyz123"},
		{"doi trimmed", "  10.1000/abc  ", "Some Title", "doi:10.1000/abc"},
		{"title fallback", "", "Deep Learning: A Survey!", "title:deep learning a survey"},
		{"nothing", "", "", ""},
		{"punctuation only title", "", "---", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalID(tt.doi, tt.title)
			if got != tt.expected {
				t.Errorf("CanonicalID(%q, %q) = %q, want %q", tt.doi, tt.title, got, tt.expected)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"CRISPR-Cas9: Gene Editing", "crispr cas9 gene editing"},
		{"  Multiple   spaces  ", "multiple spaces"},
		{"UPPER lower 123", "upper lower 123"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.expected {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func TestPaper_ScreeningText(t *testing.T) {
	p := &Paper{
		Title:    "A Title",
		Abstract: "An abstract.",
		Keywords: []string{"one", "two"},
	}
	assert.Equal(t, "A Title\nAn abstract.\none two", p.ScreeningText())

	empty := &Paper{}
	assert.Equal(t, "", empty.ScreeningText())
}

func TestPaper_EnrichAffiliations(t *testing.T) {
	p := &Paper{
		Authors: []Author{
			{Name: "A. Smith"},
			{Name: "B. Jones", Affiliation: "Existing"},
		},
	}

	p.EnrichAffiliations(map[string]string{
		"A. Smith": "University X",
		"B. Jones": "University Y",
	}, "GB")

	assert.Equal(t, "University X", p.Authors[0].Affiliation)
	// Existing affiliation is never overwritten.
	assert.Equal(t, "Existing", p.Authors[1].Affiliation)
	assert.Equal(t, "GB", p.Country)

	// Country is set-once too.
	p.EnrichAffiliations(nil, "US")
	assert.Equal(t, "GB", p.Country)
}

func TestPaper_JSONRoundTrip(t *testing.T) {
	pub := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)

	papers := []Paper{
		{
			ID:          uuid.New(),
			CanonicalID: "doi:10.1/x",
			Title:       "Full paper",
			Abstract:    "Abstract text",
			Authors: []Author{
				{Name: "A", Affiliation: "Uni", Country: "DE"},
				{Name: "B"},
			},
			Year:            2023,
			DOI:             "10.1/x",
			Journal:         "Nature",
			Source:          SourceTypePubMed,
			URL:             "https://example.org/paper",
			Keywords:        []string{"k1", "k2"},
			Country:         "DE",
			PublicationDate: &pub,
			RetrievedAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			// Minimal paper: nil slices, nil date, empty strings.
			ID:          uuid.New(),
			Title:       "Bare paper",
			Source:      SourceTypeArXiv,
			RetrievedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			// Empty (not nil) slices must survive as empty.
			ID:          uuid.New(),
			Title:       "Empty slices",
			Authors:     []Author{},
			Source:      SourceTypeOpenAlex,
			RetrievedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}

	for _, p := range papers {
		t.Run(p.Title, func(t *testing.T) {
			data, err := json.Marshal(p)
			require.NoError(t, err)

			var back Paper
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, p, back)
		})
	}
}

func TestScreeningResult_JSONRoundTrip(t *testing.T) {
	results := []ScreeningResult{
		{
			PaperID:         uuid.New(),
			Stage:           StageTitleAbstract,
			Decision:        DecisionExclude,
			Confidence:      0.92,
			Reasoning:       "off-topic",
			ExclusionReason: "wrong population",
			ScreenedAt:      time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		},
		{
			PaperID:    uuid.New(),
			Stage:      StageFullText,
			Decision:   DecisionUncertain,
			Confidence: 0,
			ScreenedAt: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
			Degraded:   true,
		},
	}

	for _, r := range results {
		data, err := json.Marshal(r)
		require.NoError(t, err)

		var back ScreeningResult
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, r, back)
		// Enum survives as its string tag.
		assert.True(t, back.Decision.IsValid())
	}
}

func TestExtractedData_JSONRoundTrip(t *testing.T) {
	items := []ExtractedData{
		{
			PaperID:      uuid.New(),
			Objectives:   "objective",
			Methodology:  "RCT",
			StudyDesign:  "double blind",
			Participants: "n=120 adults",
			Outcomes:     []string{"o1"},
			KeyFindings:  []string{"f1", "f2"},
			Limitations:  []string{},
			DomainFields: map[string]string{"dose": "5mg"},
			ExtractedAt:  time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			PaperID:     uuid.New(),
			ExtractedAt: time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, e := range items {
		data, err := json.Marshal(e)
		require.NoError(t, err)

		var back ExtractedData
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, e, back)
	}
}

// Package papersources provides clients for searching academic paper
// databases. Each database (arXiv, PubMed, OpenAlex) implements the Source
// interface, and a Registry fans a query out to every enabled source
// concurrently.
package papersources

import (
	"context"
	"time"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// SearchParams defines the parameters for searching academic papers.
// All fields except Query are optional.
type SearchParams struct {
	// Query is the search query string. The format varies by source; some
	// support boolean operators or field-specific searches.
	Query string

	// YearFrom filters papers published in or after this year.
	// Zero applies no lower bound.
	YearFrom int

	// YearTo filters papers published in or before this year.
	// Zero applies no upper bound.
	YearTo int

	// MaxResults limits the number of papers returned in a single request.
	// Sources may cap this further. Zero uses the source's default.
	MaxResults int

	// Offset is the starting position for paginated results.
	Offset int
}

// SearchResult contains the results of one source search.
type SearchResult struct {
	// Papers contains the papers returned by the search.
	Papers []*domain.Paper

	// TotalResults is the total number of papers matching the query
	// regardless of pagination. Sources may report an estimate.
	TotalResults int

	// HasMore indicates whether additional pages are available.
	HasMore bool

	// NextOffset is the offset for the next page. Only meaningful when
	// HasMore is true.
	NextOffset int

	// Source identifies which paper source produced these results.
	Source domain.SourceType

	// SearchDuration is the time taken to execute the search, including
	// network latency and response parsing.
	SearchDuration time.Duration
}

// Source is the interface every paper database client implements.
//
// Implementations must respect context cancellation, apply their own rate
// limiting, and map source-specific responses onto domain.Paper.
type Source interface {
	// Search queries the source for papers matching params.
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)

	// SourceType returns the type identifier for this source, used for
	// attribution and routing.
	SourceType() domain.SourceType

	// Name returns a human-readable name for logging and display.
	Name() string

	// IsEnabled reports whether this source is available for searches.
	// A source may be disabled by configuration or a missing API key.
	IsEnabled() bool
}

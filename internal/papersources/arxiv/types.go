package arxiv

import "encoding/xml"

// feed is the subset of the arXiv Atom response the client decodes. The
// totalResults element lives in the OpenSearch namespace; encoding/xml
// matches it by local name.
type feed struct {
	XMLName      xml.Name    `xml:"feed"`
	TotalResults int         `xml:"totalResults"`
	Entries      []feedEntry `xml:"entry"`
}

// feedEntry is one paper in the Atom feed. The entry id doubles as the
// abstract URL ("http://arxiv.org/abs/2301.12345v1") and is the only place
// the arXiv ID appears.
type feedEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Published  string         `xml:"published"`
	DOI        string         `xml:"doi"`
	JournalRef string         `xml:"journal_ref"`
	Authors    []feedAuthor   `xml:"author"`
	Categories []feedCategory `xml:"category"`
}

type feedAuthor struct {
	Name        string `xml:"name"`
	Affiliation string `xml:"affiliation"`
}

// feedCategory carries the subject class ("cs.SE") in its term attribute.
type feedCategory struct {
	Term string `xml:"term,attr"`
}

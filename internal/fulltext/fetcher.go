// Package fulltext retrieves full document text for full-text screening
// and extraction. arXiv papers are fetched from the HTML rendering of the
// paper; sources without a machine-readable full-text endpoint report the
// text as unavailable so callers degrade instead of failing.
package fulltext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// Sentinel errors for full-text retrieval.
var (
	// ErrUnavailable is returned when the paper's source has no full-text
	// endpoint. Callers treat it as a signal to degrade.
	ErrUnavailable = errors.New("fulltext: no full-text source for paper")
	// ErrTooLarge is returned when the document exceeds the maximum size.
	ErrTooLarge = errors.New("fulltext: document exceeds maximum size")
	// ErrFetchFailed is returned for network or HTTP errors.
	ErrFetchFailed = errors.New("fulltext: fetch failed")
	// ErrSSRF is returned when the URL resolves to a private network address.
	ErrSSRF = errors.New("fulltext: request to private network denied")
)

// Config holds fetcher configuration.
type Config struct {
	// MaxSize is the maximum document size in bytes. Default: 10MB.
	MaxSize int64
	// UserAgent is the User-Agent header.
	UserAgent string
	// AllowPrivateNetworks disables the SSRF private-IP checks. This MUST
	// only be set in test environments.
	AllowPrivateNetworks bool
	// BaseURL overrides the arXiv HTML endpoint, for tests.
	BaseURL string
}

// Fetcher retrieves and extracts full document text. It implements the
// FullTextProvider interfaces of the screening and extraction packages.
type Fetcher struct {
	client               *http.Client
	maxSize              int64
	userAgent            string
	baseURL              string
	allowPrivateNetworks bool
}

const defaultArXivHTMLBase = "https://arxiv.org/html"

// NewFetcher creates a Fetcher. client may be nil to use a default HTTP
// client.
func NewFetcher(cfg Config, client *http.Client) *Fetcher {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 10 * 1024 * 1024
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ReviewKit-SysRev/1.0"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultArXivHTMLBase
	}

	f := &Fetcher{
		maxSize:              cfg.MaxSize,
		userAgent:            cfg.UserAgent,
		baseURL:              strings.TrimRight(cfg.BaseURL, "/"),
		allowPrivateNetworks: cfg.AllowPrivateNetworks,
	}

	if client == nil {
		client = &http.Client{}
	}
	f.client = client
	if f.client.CheckRedirect == nil {
		// Validate each redirect target so an open redirect cannot land the
		// request on an internal address.
		f.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("%w: too many redirects", ErrSSRF)
			}
			if !f.allowPrivateNetworks {
				return validateURLNotPrivate(req.URL.String())
			}
			return nil
		}
	}

	return f
}

// FullText returns the extracted document text for a paper, or
// ErrUnavailable when the paper's source cannot provide one.
func (f *Fetcher) FullText(ctx context.Context, paper *domain.Paper) (string, error) {
	docURL, err := f.resolveURL(paper)
	if err != nil {
		return "", err
	}

	if !f.allowPrivateNetworks {
		if err := validateURLNotPrivate(docURL); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d from %s", ErrFetchFailed, resp.StatusCode, docURL)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
		return "", fmt.Errorf("%w: unexpected content type %q", ErrFetchFailed, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if int64(len(body)) > f.maxSize {
		return "", ErrTooLarge
	}

	text := ExtractText(strings.NewReader(string(body)))
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: document contained no extractable text", ErrFetchFailed)
	}
	return text, nil
}

// resolveURL maps a paper onto its full-text document URL. Only arXiv
// papers have one today; everything else is unavailable.
func (f *Fetcher) resolveURL(paper *domain.Paper) (string, error) {
	if paper.Source != domain.SourceTypeArXiv {
		return "", ErrUnavailable
	}
	id := arxivIDFromURL(paper.URL)
	if id == "" {
		return "", ErrUnavailable
	}
	return f.baseURL + "/" + id, nil
}

func arxivIDFromURL(rawURL string) string {
	const marker = "/abs/"
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return ""
	}
	return strings.Trim(rawURL[idx+len(marker):], "/")
}

// ExtractText walks an HTML document and collects its visible text.
// Script, style, and head content is skipped; whitespace is collapsed.
func ExtractText(r io.Reader) string {
	root, err := html.Parse(r)
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return strings.TrimSpace(strings.Join(strings.Fields(sb.String()), " "))
}

// isPrivateIP reports whether the IP is in a private, loopback, or
// otherwise non-routable range, for both IPv4 and IPv6.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// validateURLNotPrivate resolves the hostname and rejects private IPs and
// non-HTTP schemes.
func validateURLNotPrivate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSSRF, err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrSSRF, parsed.Scheme)
	}

	host := parsed.Hostname()
	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("%w: DNS lookup failed for %s: %w", ErrFetchFailed, host, err)
	}
	for _, ipStr := range ips {
		if ip := net.ParseIP(ipStr); ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("%w: %s resolves to private address %s", ErrSSRF, host, ipStr)
		}
	}
	return nil
}

package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	nurl "net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	// MaxTitleLength bounds scraped titles so oversized <title> tags
	// do not bloat listings.
	MaxTitleLength = 120

	truncationMarker = " [...]"

	// maxPageBytes caps how much of a page body is read. Title and
	// excerpt both live near the top of the document.
	maxPageBytes = 5 << 20
)

// Page holds the metadata pulled from a fetched article.
type Page struct {
	Title   string
	Excerpt string
}

type Scraper struct {
	client    *http.Client
	userAgent string
}

func NewScraper(userAgent string, timeout time.Duration) *Scraper {
	return &Scraper{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch retrieves the page at url and extracts its title and excerpt.
// Unreachable pages and pages without a usable title yield a zero-value
// Page, not an error: a saved article is worth keeping even when its
// source cannot be read.
func (s *Scraper) Fetch(ctx context.Context, url string) Page {
	data, err := s.download(ctx, url)
	if err != nil {
		slog.Debug("Article fetch failed", "url", url, "error", err)
		return Page{}
	}

	return Page{
		Title:   extractTitle(data),
		Excerpt: extractExcerpt(data, url),
	}
}

func extractExcerpt(data []byte, pageURL string) string {
	parsed, err := nurl.Parse(pageURL)
	if err != nil {
		parsed = nil
	}

	article, err := readability.FromReader(strings.NewReader(string(data)), parsed)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(article.Excerpt)
}

func (s *Scraper) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func extractTitle(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return ""
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	return TruncateTitle(title, MaxTitleLength)
}

// TruncateTitle shortens a title to at most max runes, appending a
// marker when anything was cut.
func TruncateTitle(title string, max int) string {
	if utf8.RuneCountInString(title) <= max {
		return title
	}

	runes := []rune(title)
	return strings.TrimSpace(string(runes[:max])) + truncationMarker
}

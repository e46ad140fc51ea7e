package crawler

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/amureki/deadlock-changelog-bot/pkg/models"
)

// Selectors for a XenForo thread page. The first post is the changelog.
const (
	titleSelector = "h1.p-title-value"
	bodySelector  = ".bbWrapper"
	timeSelector  = "time.u-dt"
)

// timestampLayouts covers "+0100" offsets (XenForo) and RFC 3339 "+01:00".
var timestampLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
}

// ExtractionError means an expected element is missing, i.e. the forum
// markup changed.
type ExtractionError struct {
	URL     string
	Element string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.URL, e.Element, e.Err)
	}
	return fmt.Sprintf("extract %s: %s not found", e.URL, e.Element)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

type Parser struct {
	fetcher PageFetcher
}

func NewParser(fetcher PageFetcher) *Parser {
	return &Parser{fetcher: fetcher}
}

// Parse fetches a thread and extracts its changelog entry.
func (p *Parser) Parse(ctx context.Context, targetURL string) (models.ChangelogEntry, error) {
	body, err := p.fetcher.Get(ctx, targetURL)
	if err != nil {
		return models.ChangelogEntry{URL: targetURL}, err
	}
	return Extract(strings.NewReader(body), targetURL)
}

// Extract pulls title, body and publish time out of a thread page.
func Extract(r io.Reader, pageURL string) (models.ChangelogEntry, error) {
	entry := models.ChangelogEntry{URL: pageURL}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return entry, &ExtractionError{URL: pageURL, Element: "document", Err: err}
	}

	title := doc.Find(titleSelector).First()
	if title.Length() == 0 {
		return entry, &ExtractionError{URL: pageURL, Element: titleSelector}
	}
	entry.Title = strings.TrimSpace(title.Text())

	body := doc.Find(bodySelector).First()
	if body.Length() == 0 {
		return entry, &ExtractionError{URL: pageURL, Element: bodySelector}
	}
	// untrimmed, so the message length check sees every character sent
	entry.TextContent = body.Text()
	entry.HTMLContent, err = body.Html()
	if err != nil {
		return entry, &ExtractionError{URL: pageURL, Element: bodySelector, Err: err}
	}

	stamp, ok := doc.Find(timeSelector).First().Attr("datetime")
	if !ok {
		return entry, &ExtractionError{URL: pageURL, Element: timeSelector}
	}
	entry.PublishedAt, err = parseTimestamp(stamp)
	if err != nil {
		return entry, &ExtractionError{URL: pageURL, Element: timeSelector, Err: err}
	}

	return entry, nil
}

func parseTimestamp(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

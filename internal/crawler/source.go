package crawler

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mmcdole/gofeed"

	"github.com/amureki/deadlock-changelog-bot/internal/logger"
	"github.com/amureki/deadlock-changelog-bot/pkg/models"
)

// PageFetcher returns the body of a page. Implemented by fetch.Client and
// fetch.Browser.
type PageFetcher interface {
	Get(ctx context.Context, url string) (string, error)
}

// threadPattern pairs a thread link with the next data-timestamp on the same line.
var threadPattern = regexp.MustCompile(`href="(/threads/[^"]+)".+?data-timestamp="(\d+)"`)

// ListingParser turns a fetched listing body into raw candidate links.
type ListingParser func(body string, base *url.URL) ([]models.CandidateLink, error)

// Source finds changelog threads updated within the polling window.
type Source struct {
	fetcher    PageFetcher
	listingURL string
	parse      ListingParser
	window     time.Duration
	filters    []LinkFilter
	now        func() time.Time
	logger     *logger.Logger
}

// NewListingSource scans the forum's HTML thread listing.
func NewListingSource(fetcher PageFetcher, listingURL string, window time.Duration, log *logger.Logger) (*Source, error) {
	return newSource(fetcher, listingURL, ParseListing, window, log)
}

// NewFeedSource reads the forum's RSS feed instead of the HTML listing.
func NewFeedSource(fetcher PageFetcher, feedURL string, window time.Duration, log *logger.Logger) (*Source, error) {
	return newSource(fetcher, feedURL, ParseFeed, window, log)
}

func newSource(fetcher PageFetcher, listingURL string, parse ListingParser, window time.Duration, log *logger.Logger) (*Source, error) {
	domain, err := NewInDomainFilter(listingURL)
	if err != nil {
		return nil, err
	}

	return &Source{
		fetcher:    fetcher,
		listingURL: listingURL,
		parse:      parse,
		window:     window,
		filters:    []LinkFilter{ShortcutFilter{}, domain},
		now:        time.Now,
		logger:     log,
	}, nil
}

// SetClock replaces the time source used to compute the window.
func (s *Source) SetClock(now func() time.Time) {
	s.now = now
}

// FetchCandidateLinks returns the threads updated strictly after now-window,
// one per URL, oldest first. Fetch failures are returned unchanged.
func (s *Source) FetchCandidateLinks(ctx context.Context) ([]models.CandidateLink, error) {
	body, err := s.fetcher.Get(ctx, s.listingURL)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Fetched changelog listing", "url", s.listingURL, "size", humanize.Bytes(uint64(len(body))))

	base, err := url.Parse(s.listingURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listing URL: %w", err)
	}

	raw, err := s.parse(body, base)
	if err != nil {
		return nil, err
	}

	since := s.now().Add(-s.window)
	filters := append(append([]LinkFilter{}, s.filters...), WindowFilter{Since: since})

	links := dedupe(applyFilters(raw, filters...))
	for _, link := range links {
		s.logger.Info("Found new changelog entry", "url", link.URL, "updated", link.LastUpdate)
	}
	return links, nil
}

// ParseListing extracts (thread path, unix timestamp) pairs from the forum
// listing markup and resolves paths against base.
func ParseListing(body string, base *url.URL) ([]models.CandidateLink, error) {
	var links []models.CandidateLink

	for _, match := range threadPattern.FindAllStringSubmatch(body, -1) {
		ref, err := url.Parse(match[1])
		if err != nil {
			continue
		}
		ts, err := strconv.ParseInt(match[2], 10, 64)
		if err != nil {
			continue
		}
		links = append(links, models.CandidateLink{
			URL:        base.ResolveReference(ref).String(),
			LastUpdate: time.Unix(ts, 0),
		})
	}

	return links, nil
}

// ParseFeed reads an RSS/Atom document. Items without a date are skipped
// since they can never fall inside the window.
func ParseFeed(body string, base *url.URL) ([]models.CandidateLink, error) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var links []models.CandidateLink
	for _, item := range feed.Items {
		if strings.TrimSpace(item.Link) == "" {
			continue
		}

		stamp := item.UpdatedParsed
		if stamp == nil {
			stamp = item.PublishedParsed
		}
		if stamp == nil {
			continue
		}

		ref, err := url.Parse(strings.TrimSpace(item.Link))
		if err != nil {
			continue
		}
		links = append(links, models.CandidateLink{
			URL:        base.ResolveReference(ref).String(),
			LastUpdate: *stamp,
		})
	}

	return links, nil
}

// dedupe collapses repeated URLs, keeping the newest timestamp.
func dedupe(links []models.CandidateLink) []models.CandidateLink {
	byURL := make(map[string]models.CandidateLink, len(links))
	for _, link := range links {
		if prev, ok := byURL[link.URL]; !ok || link.LastUpdate.After(prev.LastUpdate) {
			byURL[link.URL] = link
		}
	}

	out := make([]models.CandidateLink, 0, len(byURL))
	for _, link := range byURL {
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdate.Equal(out[j].LastUpdate) {
			return out[i].URL < out[j].URL
		}
		return out[i].LastUpdate.Before(out[j].LastUpdate)
	})
	return out
}

package crawler

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/amureki/deadlock-changelog-bot/pkg/models"
)

// LinkFilter decides whether a candidate link is kept.
type LinkFilter interface {
	Filter(link models.CandidateLink) bool
}

// ShortcutFilter drops the forum's "latest changelog" shortcut, which never
// points at a dated entry.
type ShortcutFilter struct{}

func (ShortcutFilter) Filter(link models.CandidateLink) bool {
	path := link.URL
	if u, err := url.Parse(link.URL); err == nil {
		path = u.Path
	}
	return !strings.Contains(path, "latest")
}

// WindowFilter keeps links updated strictly after Since.
type WindowFilter struct {
	Since time.Time
}

func (f WindowFilter) Filter(link models.CandidateLink) bool {
	return link.LastUpdate.After(f.Since)
}

// InDomainFilter keeps links on the forum host.
type InDomainFilter struct {
	Domain string
}

func NewInDomainFilter(forumURL string) (*InDomainFilter, error) {
	u, err := url.Parse(forumURL)
	if err != nil {
		return nil, fmt.Errorf("invalid forum URL: %w", err)
	}

	// strip "www." so subdomains still match
	domain := strings.TrimPrefix(u.Hostname(), "www.")
	if domain == "" {
		return nil, fmt.Errorf("could not extract domain from %s", forumURL)
	}

	return &InDomainFilter{Domain: domain}, nil
}

func (f InDomainFilter) Filter(link models.CandidateLink) bool {
	u, err := url.Parse(link.URL)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Host), strings.ToLower(f.Domain))
}

// applyFilters keeps links that pass every filter.
func applyFilters(links []models.CandidateLink, filters ...LinkFilter) []models.CandidateLink {
	var kept []models.CandidateLink
outer:
	for _, link := range links {
		for _, f := range filters {
			if !f.Filter(link) {
				continue outer
			}
		}
		kept = append(kept, link)
	}
	return kept
}

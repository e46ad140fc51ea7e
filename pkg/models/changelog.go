package models

import "time"

// CandidateLink is a thread found on the changelog listing during one cycle.
type CandidateLink struct {
	URL        string
	LastUpdate time.Time
}

// ChangelogEntry is a single extracted changelog thread.
type ChangelogEntry struct {
	Title       string
	TextContent string
	HTMLContent string
	URL         string
	PublishedAt time.Time
}

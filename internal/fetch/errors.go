package fetch

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrUnexpectedStatus marks a response outside the 2xx range.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrDisallowed is returned when robots.txt forbids the path.
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// FetchError is any failed outbound HTTP call: transport errors, non-2xx
// responses and robots refusals.
type FetchError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	target := RedactURL(e.URL)
	if errors.Is(e.Err, ErrUnexpectedStatus) {
		if e.Body != "" {
			return fmt.Sprintf("fetch %s %s: %v: %d: %s", e.Method, target, e.Err, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("fetch %s %s: %v: %d", e.Method, target, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s %s: %v", e.Method, target, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

var botTokenPattern = regexp.MustCompile(`/bot[^/]+/`)

// RedactURL hides Telegram bot tokens embedded in API paths.
func RedactURL(raw string) string {
	return botTokenPattern.ReplaceAllString(raw, "/bot<redacted>/")
}

// excerpt keeps error bodies short enough to log.
func excerpt(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// Package fetch wraps outbound HTTP for the forum and the delivery APIs.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 10 * 1024 * 1024

// Options configures a Client.
type Options struct {
	Timeout       time.Duration
	UserAgent     string
	RateLimit     time.Duration
	RespectRobots bool
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client performs polite, size-capped HTTP requests.
type Client struct {
	http          *http.Client
	userAgent     string
	domains       *DomainManager
	respectRobots bool
}

func NewClient(opts Options) *Client {
	httpClient := &http.Client{Timeout: opts.Timeout}
	return &Client{
		http:          httpClient,
		userAgent:     opts.UserAgent,
		domains:       NewDomainManager(httpClient, opts.UserAgent, opts.RateLimit),
		respectRobots: opts.RespectRobots,
	}
}

// Get fetches an HTML page. Non-2xx statuses become a *FetchError.
func (c *Client) Get(ctx context.Context, target string) (string, error) {
	if err := checkRobots(ctx, c.domains, c.respectRobots, target); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return "", &FetchError{Method: http.MethodGet, URL: target, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.Do(req)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &FetchError{
			Method:     http.MethodGet,
			URL:        target,
			StatusCode: resp.StatusCode,
			Err:        ErrUnexpectedStatus,
		}
	}
	return string(resp.Body), nil
}

// checkRobots refuses target when robots.txt is honoured and disallows it.
func checkRobots(ctx context.Context, domains *DomainManager, enabled bool, target string) error {
	if enabled && !domains.IsAllowed(ctx, target) {
		return &FetchError{Method: http.MethodGet, URL: target, Err: ErrDisallowed}
	}
	return nil
}

// PostForm sends application/x-www-form-urlencoded values. The status code is
// left for the caller to judge.
func (c *Client) PostForm(ctx context.Context, target string, form url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &FetchError{Method: http.MethodPost, URL: target, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Do(req)
}

// PostJSON marshals payload and posts it.
func (c *Client) PostJSON(ctx context.Context, target string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Method: http.MethodPost, URL: target, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}

// Do applies the User-Agent and per-host throttling, then reads the body.
func (c *Client) Do(req *http.Request) (*Response, error) {
	target := req.URL.String()

	if err := c.domains.Wait(req.Context(), target); err != nil {
		return nil, &FetchError{Method: req.Method, URL: target, Err: err}
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		// *url.Error repeats the URL, which may carry a bot token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, &FetchError{Method: req.Method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Method: req.Method, URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// StatusError builds the error for a non-2xx API response.
func StatusError(method, target string, resp *Response) error {
	return &FetchError{
		Method:     method,
		URL:        target,
		StatusCode: resp.StatusCode,
		Body:       excerpt(resp.Body),
		Err:        ErrUnexpectedStatus,
	}
}

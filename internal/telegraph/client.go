package telegraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/amureki/deadlock-changelog-bot/internal/fetch"
)

// PublishError is an in-band failure reported by the Telegraph API.
type PublishError struct {
	Code    string
	Payload string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to create page: %s: %s", e.Code, e.Payload)
}

// Page is the part of the createPage result the relay uses.
type Page struct {
	Path  string `json:"path"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type createPageRequest struct {
	AccessToken string `json:"access_token"`
	Title       string `json:"title"`
	Content     []any  `json:"content"`
}

type apiResponse struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

// Client talks to api.telegra.ph.
type Client struct {
	http   *fetch.Client
	apiURL string
	token  string
}

func NewClient(httpClient *fetch.Client, apiURL, accessToken string) *Client {
	return &Client{
		http:   httpClient,
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  accessToken,
	}
}

// CreatePage publishes content (see Serialize) under title and returns the
// hosted page. The API reports failure in the body, so ok:false is a
// *PublishError whatever the HTTP status.
func (c *Client) CreatePage(ctx context.Context, title string, content []any) (*Page, error) {
	endpoint := c.apiURL + "/createPage"

	resp, err := c.http.PostJSON(ctx, endpoint, createPageRequest{
		AccessToken: c.token,
		Title:       title,
		Content:     content,
	})
	if err != nil {
		return nil, err
	}

	var decoded apiResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		if !resp.OK() {
			return nil, fetch.StatusError(http.MethodPost, endpoint, resp)
		}
		return nil, fmt.Errorf("failed to parse createPage response: %w", err)
	}

	if !decoded.OK {
		return nil, &PublishError{Code: decoded.Error, Payload: string(resp.Body)}
	}
	if !resp.OK() {
		return nil, fetch.StatusError(http.MethodPost, endpoint, resp)
	}

	var page Page
	if err := json.Unmarshal(decoded.Result, &page); err != nil {
		return nil, fmt.Errorf("failed to parse createPage result: %w", err)
	}
	return &page, nil
}

// Package telegram posts messages to a Telegram channel through the Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/amureki/deadlock-changelog-bot/internal/fetch"
	"github.com/amureki/deadlock-changelog-bot/pkg/models"
)

// Client sends messages to one fixed chat.
type Client struct {
	http      *fetch.Client
	apiURL    string
	token     string
	channelID string
}

func NewClient(httpClient *fetch.Client, apiURL, token, channelID string) *Client {
	return &Client{
		http:      httpClient,
		apiURL:    strings.TrimRight(apiURL, "/"),
		token:     token,
		channelID: channelID,
	}
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts text, already escaped for mode, to the channel. No retries.
func (c *Client) Send(ctx context.Context, text string, mode models.ParseMode) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, c.token)

	form := url.Values{}
	form.Set("chat_id", c.channelID)
	form.Set("parse_mode", mode.String())
	form.Set("text", text)

	resp, err := c.http.PostForm(ctx, endpoint, form)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fetch.StatusError(http.MethodPost, endpoint, resp)
	}

	var decoded sendMessageResponse
	if err := json.Unmarshal(resp.Body, &decoded); err == nil && !decoded.OK {
		return fmt.Errorf("sendMessage rejected: %s", decoded.Description)
	}
	return nil
}

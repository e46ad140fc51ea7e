package telegraph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amureki/deadlock-changelog-bot/internal/fetch"
)

func newTestClient(url string) *Client {
	httpClient := fetch.NewClient(fetch.Options{Timeout: 5 * time.Second, UserAgent: "test"})
	return NewClient(httpClient, url, "secret-token")
}

func TestCreatePage_Success(t *testing.T) {
	var received createPageRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/createPage" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		w.Write([]byte(`{"ok":true,"result":{"path":"Update-09-19","url":"https://telegra.ph/Update-09-19","title":"Update"}}`))
	}))
	defer server.Close()

	content := Serialize([]Node{Elem("p", nil, Text("hi"))})
	page, err := newTestClient(server.URL).CreatePage(context.Background(), "Update", content)
	if err != nil {
		t.Fatalf("CreatePage failed: %v", err)
	}

	if page.URL != "https://telegra.ph/Update-09-19" {
		t.Errorf("Unexpected page URL %q", page.URL)
	}
	if received.AccessToken != "secret-token" || received.Title != "Update" {
		t.Errorf("Unexpected request %+v", received)
	}
	if len(received.Content) != 1 {
		t.Errorf("Expected one content node, got %d", len(received.Content))
	}
}

func TestCreatePage_InBandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Telegraph answers 200 even on failure.
		w.Write([]byte(`{"ok":false,"error":"ACCESS_TOKEN_INVALID"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreatePage(context.Background(), "T", []any{})

	var publishErr *PublishError
	if !errors.As(err, &publishErr) {
		t.Fatalf("Expected PublishError, got %v", err)
	}
	if publishErr.Code != "ACCESS_TOKEN_INVALID" {
		t.Errorf("Unexpected code %q", publishErr.Code)
	}
}

func TestCreatePage_HTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreatePage(context.Background(), "T", []any{})

	var fetchErr *fetch.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", fetchErr.StatusCode)
	}
}

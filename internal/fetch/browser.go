package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Browser fetches pages through headless Chrome, for when the forum sits
// behind a JavaScript challenge.
type Browser struct {
	browserCtx    context.Context
	cancel        context.CancelFunc
	timeout       time.Duration
	domains       *DomainManager
	respectRobots bool
}

// NewBrowser launches one headless Chrome that every Get opens a tab in.
// Close releases it.
func NewBrowser(ctx context.Context, opts Options) (*Browser, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(opts.UserAgent),
		chromedp.Flag("headless", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// An empty run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &Browser{
		browserCtx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
		timeout:       opts.Timeout,
		domains:       NewDomainManager(&http.Client{Timeout: opts.Timeout}, opts.UserAgent, opts.RateLimit),
		respectRobots: opts.RespectRobots,
	}, nil
}

// Get navigates to target in a fresh tab and returns the rendered document.
func (b *Browser) Get(ctx context.Context, target string) (string, error) {
	if err := checkRobots(ctx, b.domains, b.respectRobots, target); err != nil {
		return "", err
	}
	if err := b.domains.Wait(ctx, target); err != nil {
		return "", &FetchError{Method: http.MethodGet, URL: target, Err: err}
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	// The tab hangs off the browser, so tie it to the caller by hand.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	headers := network.Headers{"Accept-Language": "en-US,en;q=0.9"}
	if err := chromedp.Run(tabCtx, network.SetExtraHTTPHeaders(headers)); err != nil {
		return "", &FetchError{Method: http.MethodGet, URL: target, Err: err}
	}

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(target))
	if err != nil {
		return "", &FetchError{Method: http.MethodGet, URL: target, Err: err}
	}
	if resp != nil && (resp.Status < 200 || resp.Status >= 300) {
		return "", &FetchError{
			Method:     http.MethodGet,
			URL:        target,
			StatusCode: int(resp.Status),
			Err:        ErrUnexpectedStatus,
		}
	}

	var document string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &document, chromedp.ByQuery)); err != nil {
		return "", &FetchError{Method: http.MethodGet, URL: target, Err: err}
	}
	return document, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.cancel()
}

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/amureki/deadlock-changelog-bot/internal/logger"
	"github.com/amureki/deadlock-changelog-bot/internal/storage"
	"github.com/amureki/deadlock-changelog-bot/internal/telegraph"
	"github.com/amureki/deadlock-changelog-bot/pkg/models"
)

var errBroken = errors.New("broken")

type fakeSource struct {
	links []models.CandidateLink
	err   error
	calls int
}

func (f *fakeSource) FetchCandidateLinks(ctx context.Context) ([]models.CandidateLink, error) {
	f.calls++
	return f.links, f.err
}

type fakeProcessor struct {
	failing map[string]bool
	parsed  []string
}

func (f *fakeProcessor) Parse(ctx context.Context, url string) (models.ChangelogEntry, error) {
	f.parsed = append(f.parsed, url)
	if f.failing[url] {
		return models.ChangelogEntry{}, errBroken
	}
	return models.ChangelogEntry{
		Title:       "Update " + url,
		TextContent: "notes",
		HTMLContent: "<b>notes</b>",
		URL:         url,
	}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries []models.ChangelogEntry
}

func (r *recordingSink) Deliver(ctx context.Context, entry models.ChangelogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingSink) urls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.URL)
	}
	return out
}

func links(urls ...string) []models.CandidateLink {
	out := make([]models.CandidateLink, 0, len(urls))
	for _, u := range urls {
		out = append(out, models.CandidateLink{URL: u})
	}
	return out
}

func TestCycle_DeliversInOrder(t *testing.T) {
	source := &fakeSource{links: links("a", "b", "c")}
	sink := &recordingSink{}
	e := NewEngine(Config{}, source, &fakeProcessor{}, sink, logger.Discard())

	if err := e.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}

	got := strings.Join(sink.urls(), ",")
	if got != "a,b,c" {
		t.Errorf("Expected delivery order a,b,c, got %s", got)
	}

	snap := e.Status().Snapshot()
	if snap.Delivered != 3 || snap.Cycles != 1 || snap.LastError != "" {
		t.Errorf("Unexpected status: %+v", snap)
	}
	if _, err := uuid.Parse(snap.LastCycleID); err != nil {
		t.Errorf("Expected a uuid cycle id, got %q", snap.LastCycleID)
	}

	if err := e.Cycle(context.Background()); err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}
	if next := e.Status().Snapshot().LastCycleID; next == snap.LastCycleID {
		t.Errorf("Each cycle should get its own id, both were %q", next)
	}
}

func TestCycle_FailFast(t *testing.T) {
	source := &fakeSource{links: links("a", "b", "c")}
	processor := &fakeProcessor{failing: map[string]bool{"b": true}}
	sink := &recordingSink{}
	e := NewEngine(Config{}, source, processor, sink, logger.Discard())

	err := e.Cycle(context.Background())
	if !errors.Is(err, errBroken) {
		t.Fatalf("Expected errBroken, got %v", err)
	}
	if got := strings.Join(sink.urls(), ","); got != "a" {
		t.Errorf("Expected only a delivered, got %s", got)
	}
	if e.Status().Snapshot().LastError == "" {
		t.Error("Expected status to record the error")
	}
}

func TestCycle_ContinueOnError(t *testing.T) {
	source := &fakeSource{links: links("a", "b", "c")}
	processor := &fakeProcessor{failing: map[string]bool{"b": true}}
	sink := &recordingSink{}
	e := NewEngine(Config{ContinueOnError: true}, source, processor, sink, logger.Discard())

	err := e.Cycle(context.Background())
	if !errors.Is(err, errBroken) {
		t.Fatalf("Expected joined errBroken, got %v", err)
	}
	if got := strings.Join(sink.urls(), ","); got != "a,c" {
		t.Errorf("Expected a,c delivered, got %s", got)
	}
}

func TestCycle_SourceError(t *testing.T) {
	source := &fakeSource{err: errBroken}
	e := NewEngine(Config{}, source, &fakeProcessor{}, &recordingSink{}, logger.Discard())

	if err := e.Cycle(context.Background()); !errors.Is(err, errBroken) {
		t.Errorf("Expected source error to propagate, got %v", err)
	}
}

func TestCycle_LedgerSkipsDelivered(t *testing.T) {
	ctx := context.Background()
	ledger := storage.NewMemoryLedger()
	ledger.Record(ctx, models.ChangelogEntry{URL: "a"})

	processor := &fakeProcessor{}
	sink := &recordingSink{}
	e := NewEngine(Config{}, &fakeSource{links: links("a", "b")}, processor, sink, logger.Discard())
	e.SetLedger(ledger)

	if err := e.Cycle(ctx); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if got := strings.Join(sink.urls(), ","); got != "b" {
		t.Errorf("Expected only b delivered, got %s", got)
	}
	if len(processor.parsed) != 1 {
		t.Errorf("Expected a to be skipped before extraction, parsed %v", processor.parsed)
	}
	if seen, _ := ledger.Seen(ctx, "b"); !seen {
		t.Error("Expected b to be recorded")
	}

	// a second pass over the same window delivers nothing
	if err := e.Cycle(ctx); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if len(sink.urls()) != 1 {
		t.Errorf("Expected no redelivery, got %v", sink.urls())
	}
}

func TestRunOnce(t *testing.T) {
	source := &fakeSource{}
	sink := &recordingSink{}
	e := NewEngine(Config{}, source, &fakeProcessor{}, sink, logger.Discard())

	if err := e.RunOnce(context.Background(), "https://forums.playdeadlock.com/threads/x.1/"); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if source.calls != 0 {
		t.Error("RunOnce should not consult the listing")
	}
	if len(sink.urls()) != 1 {
		t.Errorf("Expected one delivery, got %d", len(sink.urls()))
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSource{links: links("a")}
	sink := &recordingSink{}
	e := NewEngine(Config{PollInterval: time.Hour}, source, &fakeProcessor{}, sink, logger.Discard())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(sink.urls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for first cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_FailFastReturnsError(t *testing.T) {
	e := NewEngine(Config{PollInterval: time.Hour}, &fakeSource{err: errBroken}, &fakeProcessor{}, &recordingSink{}, logger.Discard())

	if err := e.Run(context.Background()); !errors.Is(err, errBroken) {
		t.Errorf("Expected errBroken, got %v", err)
	}
}

type fakeMessenger struct {
	text string
	mode models.ParseMode
}

func (f *fakeMessenger) Send(ctx context.Context, text string, mode models.ParseMode) error {
	f.text = text
	f.mode = mode
	return nil
}

type fakePublisher struct {
	title   string
	content []any
	err     error
}

func (f *fakePublisher) CreatePage(ctx context.Context, title string, content []any) (*telegraph.Page, error) {
	f.title = title
	f.content = content
	if f.err != nil {
		return nil, f.err
	}
	return &telegraph.Page{Path: "Update-09-19", URL: "https://telegra.ph/Update-09-19", Title: title}, nil
}

func testEntry() models.ChangelogEntry {
	return models.ChangelogEntry{
		Title:       "09-19-2024 Update",
		TextContent: "- Fixed a bug",
		HTMLContent: "- Fixed a bug<br><b>Heroes</b>",
		URL:         "https://forums.playdeadlock.com/threads/09-19-2024-update.33015/",
	}
}

func TestDispatcher_WithoutMirror(t *testing.T) {
	messenger := &fakeMessenger{}
	d := NewDispatcher(messenger, nil, models.HTML, logger.Discard())

	if err := d.Deliver(context.Background(), testEntry()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if !strings.Contains(messenger.text, `href="https://forums.playdeadlock.com/threads/09-19-2024-update.33015/"`) {
		t.Errorf("Expected footer to link the forum thread, got %q", messenger.text)
	}
	if messenger.mode != models.HTML {
		t.Errorf("Expected HTML mode, got %v", messenger.mode)
	}
}

func TestDispatcher_WithMirror(t *testing.T) {
	messenger := &fakeMessenger{}
	publisher := &fakePublisher{}
	d := NewDispatcher(messenger, publisher, models.HTML, logger.Discard())

	if err := d.Deliver(context.Background(), testEntry()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if publisher.title != "09-19-2024 Update" {
		t.Errorf("Unexpected page title %q", publisher.title)
	}
	if len(publisher.content) != 2 {
		t.Errorf("Expected a paragraph and a bold node, got %d nodes", len(publisher.content))
	}
	if !strings.Contains(messenger.text, "https://telegra.ph/Update-09-19") {
		t.Errorf("Expected footer to link the mirror, got %q", messenger.text)
	}
}

func TestDispatcher_MirrorFailureSkipsSend(t *testing.T) {
	messenger := &fakeMessenger{}
	d := NewDispatcher(messenger, &fakePublisher{err: errBroken}, models.HTML, logger.Discard())

	if err := d.Deliver(context.Background(), testEntry()); !errors.Is(err, errBroken) {
		t.Fatalf("Expected errBroken, got %v", err)
	}
	if messenger.text != "" {
		t.Error("Message must not be sent when mirroring fails")
	}
}

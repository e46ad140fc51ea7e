package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amureki/deadlock-changelog-bot/internal/logger"
	"github.com/amureki/deadlock-changelog-bot/internal/storage"
	"github.com/amureki/deadlock-changelog-bot/pkg/models"
)

// Source lists the changelog threads that are new in the current window.
type Source interface {
	FetchCandidateLinks(ctx context.Context) ([]models.CandidateLink, error)
}

// Processor turns a thread URL into a changelog entry.
type Processor interface {
	Parse(ctx context.Context, url string) (models.ChangelogEntry, error)
}

// Sink delivers one entry downstream.
type Sink interface {
	Deliver(ctx context.Context, entry models.ChangelogEntry) error
}

// Config holds loop settings.
type Config struct {
	PollInterval    time.Duration
	ContinueOnError bool
}

// Engine is the poll -> extract -> deliver loop.
type Engine struct {
	config    Config
	source    Source
	processor Processor
	sink      Sink
	ledger    storage.Ledger
	status    *Status
	logger    *logger.Logger
}

func NewEngine(cfg Config, source Source, processor Processor, sink Sink, log *logger.Logger) *Engine {
	return &Engine{
		config:    cfg,
		source:    source,
		processor: processor,
		sink:      sink,
		status:    &Status{},
		logger:    log,
	}
}

// SetLedger enables skipping entries that were already delivered.
func (engine *Engine) SetLedger(ledger storage.Ledger) {
	engine.ledger = ledger
}

// Status exposes run statistics.
func (engine *Engine) Status() *Status {
	return engine.status
}

// RunOnce extracts and delivers a single thread, bypassing the listing.
func (engine *Engine) RunOnce(ctx context.Context, url string) error {
	engine.logger.Info("Parsing changelog entry", "url", url)
	_, err := engine.deliver(ctx, url, engine.logger)
	return err
}

// Run polls until ctx is cancelled. Without ContinueOnError the first failure
// ends the loop and is returned.
func (engine *Engine) Run(ctx context.Context) error {
	for {
		if err := engine.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !engine.config.ContinueOnError {
				return err
			}
			engine.logger.Error("Cycle failed", "error", err)
		}

		engine.logger.Info("Sleeping", "interval", engine.config.PollInterval)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(engine.config.PollInterval):
		}
	}
}

// Cycle runs one poll: list candidates, then extract and deliver each in turn.
func (engine *Engine) Cycle(ctx context.Context) (err error) {
	id := uuid.NewString()
	log := engine.logger.With("cycle", id)
	engine.status.cycleStarted(id, time.Now())
	defer func() { engine.status.cycleFinished(time.Now(), err) }()

	log.Info("Parsing forum for new changelog entries")

	links, err := engine.source.FetchCandidateLinks(ctx)
	if err != nil {
		return fmt.Errorf("fetch candidate links: %w", err)
	}

	var failures []error
	for _, link := range links {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		entryLog := log.With("url", link.URL)
		entryLog.Info("Parsing changelog entry")

		if _, err := engine.deliver(ctx, link.URL, entryLog); err != nil {
			if !engine.config.ContinueOnError {
				return err
			}
			entryLog.Error("Failed to relay entry", "error", err)
			failures = append(failures, err)
		}
	}

	return errors.Join(failures...)
}

// deliver reports whether the entry was sent; false with a nil error means the
// ledger already had it.
func (engine *Engine) deliver(ctx context.Context, url string, log *logger.Logger) (bool, error) {
	if engine.ledger != nil {
		seen, err := engine.ledger.Seen(ctx, url)
		if err != nil {
			return false, err
		}
		if seen {
			log.Info("Already delivered, skipping", "url", url)
			return false, nil
		}
	}

	entry, err := engine.processor.Parse(ctx, url)
	if err != nil {
		return false, err
	}

	if err := engine.sink.Deliver(ctx, entry); err != nil {
		return false, fmt.Errorf("deliver %s: %w", url, err)
	}
	engine.status.delivered()
	log.Info("Delivered changelog entry", "title", entry.Title)

	if engine.ledger != nil {
		if err := engine.ledger.Record(ctx, entry); err != nil {
			return true, err
		}
	}
	return true, nil
}

package engine

import (
	"context"
	"fmt"

	"github.com/amureki/deadlock-changelog-bot/internal/logger"
	"github.com/amureki/deadlock-changelog-bot/internal/telegraph"
	"github.com/amureki/deadlock-changelog-bot/pkg/models"
)

// Publisher mirrors long-form content to a hosted page.
type Publisher interface {
	CreatePage(ctx context.Context, title string, content []any) (*telegraph.Page, error)
}

// Messenger posts a formatted message to the channel.
type Messenger interface {
	Send(ctx context.Context, text string, mode models.ParseMode) error
}

// Dispatcher is the Sink that mirrors an entry (optionally) and announces it.
type Dispatcher struct {
	publisher Publisher
	messenger Messenger
	mode      models.ParseMode
	logger    *logger.Logger
}

// NewDispatcher builds a Sink. A nil publisher disables mirroring and the
// message links to the forum thread instead.
func NewDispatcher(messenger Messenger, publisher Publisher, mode models.ParseMode, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		messenger: messenger,
		mode:      mode,
		logger:    log,
	}
}

func (d *Dispatcher) Deliver(ctx context.Context, entry models.ChangelogEntry) error {
	link := entry.URL

	if d.publisher != nil {
		nodes, err := telegraph.HTMLToNodes(entry.HTMLContent)
		if err != nil {
			return err
		}

		page, err := d.publisher.CreatePage(ctx, entry.Title, telegraph.Serialize(nodes))
		if err != nil {
			return fmt.Errorf("mirror to telegraph: %w", err)
		}
		d.logger.Debug("Created telegraph page", "url", page.URL)
		link = page.URL
	}

	return d.messenger.Send(ctx, entry.RenderMessage(d.mode, link), d.mode)
}

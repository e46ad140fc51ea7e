package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/amureki/deadlock-changelog-bot/internal/config"
	"github.com/amureki/deadlock-changelog-bot/internal/crawler"
	"github.com/amureki/deadlock-changelog-bot/internal/crawler/engine"
	"github.com/amureki/deadlock-changelog-bot/internal/fetch"
	"github.com/amureki/deadlock-changelog-bot/internal/logger"
	"github.com/amureki/deadlock-changelog-bot/internal/server"
	"github.com/amureki/deadlock-changelog-bot/internal/storage"
	"github.com/amureki/deadlock-changelog-bot/internal/telegram"
	"github.com/amureki/deadlock-changelog-bot/internal/telegraph"
	"github.com/amureki/deadlock-changelog-bot/pkg/models"
)

const memoryLedgerDSN = "memory://"

var cli struct {
	URL string `arg:"" optional:"" help:"Changelog thread to relay once. Without it the forum is polled continuously."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("changelog"),
		kong.Description("Relays Deadlock forum changelog posts to a Telegram channel."),
		kong.UsageOnError(),
	)

	if err := run(cli.URL); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(threadURL string) error {
	log := logger.New("info")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode, err := models.ParseParseMode(cfg.ParseMode)
	if err != nil {
		return err
	}

	opts := fetch.Options{
		Timeout:       cfg.HTTPTimeout,
		UserAgent:     cfg.UserAgent,
		RateLimit:     cfg.RateLimit,
		RespectRobots: cfg.RespectRobots,
	}
	httpClient := fetch.NewClient(opts)

	var pages crawler.PageFetcher = httpClient
	if cfg.FetchMode == "browser" {
		browser, err := fetch.NewBrowser(ctx, opts)
		if err != nil {
			return err
		}
		defer browser.Close()
		pages = browser
	}

	var source *crawler.Source
	if cfg.ListingMode == "feed" {
		source, err = crawler.NewFeedSource(pages, cfg.FeedURL(), cfg.PollInterval(), log)
	} else {
		source, err = crawler.NewListingSource(pages, cfg.ListingURL(), cfg.PollInterval(), log)
	}
	if err != nil {
		return err
	}

	var publisher engine.Publisher
	if cfg.MirrorEnabled() {
		publisher = telegraph.NewClient(httpClient, cfg.TelegraphAPIURL, cfg.TelegraphToken)
	}
	messenger := telegram.NewClient(httpClient, cfg.TelegramAPIURL, cfg.BotToken, cfg.ChannelID)
	dispatcher := engine.NewDispatcher(messenger, publisher, mode, log)

	e := engine.NewEngine(engine.Config{
		PollInterval:    cfg.PollInterval(),
		ContinueOnError: cfg.ContinueOnError,
	}, source, crawler.NewParser(pages), dispatcher, log)

	switch cfg.DatabaseURL {
	case "":
	case memoryLedgerDSN:
		e.SetLedger(storage.NewMemoryLedger())
	default:
		store, err := storage.Open(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer store.Close()
		e.SetLedger(store)
	}

	runMode := "continuous"
	if threadURL != "" {
		runMode = "one-shot"
	}

	if cfg.StatusAddr != "" {
		srv := server.New(e.Status(), runMode, log)
		go func() {
			if err := srv.Start(ctx, cfg.StatusAddr); err != nil {
				log.Error("Status server failed", "error", err)
			}
		}()
	}

	log.Info("Starting changelog relay",
		"mode", runMode,
		"parse_mode", mode,
		"mirror", cfg.MirrorEnabled(),
		"listing", cfg.ListingMode,
		"fetch", cfg.FetchMode,
	)

	if threadURL != "" {
		return e.RunOnce(ctx, threadURL)
	}

	if err := e.Run(ctx); err != nil {
		return err
	}
	log.Info("Shutting down")
	return nil
}

package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Validation errors.
var (
	ErrInvalidParseMode    = errors.New("TELEGRAM_PARSE_MODE must be HTML or MarkdownV2")
	ErrInvalidPollInterval = errors.New("POLL_INTERVAL_SECONDS must be positive")
	ErrInvalidListingMode  = errors.New("LISTING_MODE must be html or feed")
	ErrInvalidFetchMode    = errors.New("FETCH_MODE must be http or browser")
	ErrInvalidForumURL     = errors.New("FORUM_URL must be an absolute http(s) URL")
	ErrInvalidTimeout      = errors.New("HTTP_TIMEOUT must be positive")
)

type Config struct {
	// BotToken maps to TELEGRAM_BOT_TOKEN.
	// Required so the relay fails fast instead of posting nowhere.
	BotToken  string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	ChannelID string `envconfig:"TELEGRAM_CHANNEL_ID" required:"true"`

	TelegramAPIURL string `envconfig:"TELEGRAM_API_URL" default:"https://api.telegram.org"`

	// ParseMode is HTML (what the forum markup maps to) or MarkdownV2.
	ParseMode string `envconfig:"TELEGRAM_PARSE_MODE" default:"HTML"`

	// TelegraphToken is optional. Empty disables mirroring.
	TelegraphToken  string `envconfig:"TELEGRAPH_ACCESS_TOKEN"`
	TelegraphAPIURL string `envconfig:"TELEGRAPH_API_URL" default:"https://api.telegra.ph"`

	PollIntervalSeconds int `envconfig:"POLL_INTERVAL_SECONDS" default:"3600"`

	ForumURL      string `envconfig:"FORUM_URL" default:"https://forums.playdeadlock.com"`
	ChangelogPath string `envconfig:"CHANGELOG_PATH" default:"/forums/changelog.10/"`
	LastDays      int    `envconfig:"LAST_DAYS" default:"7"`

	ListingMode string `envconfig:"LISTING_MODE" default:"html"`
	FetchMode   string `envconfig:"FETCH_MODE" default:"http"`

	HTTPTimeout   time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	UserAgent     string        `envconfig:"USER_AGENT" default:"DeadlockChangelogBot/1.0"`
	RateLimit     time.Duration `envconfig:"RATE_LIMIT" default:"1s"`
	RespectRobots bool          `envconfig:"RESPECT_ROBOTS" default:"false"`

	// ContinueOnError keeps the loop alive when a single entry or cycle fails.
	ContinueOnError bool `envconfig:"CONTINUE_ON_ERROR" default:"false"`

	// DatabaseURL enables the delivery ledger. postgres:// or sqlite://.
	DatabaseURL string `envconfig:"DB_URL"`

	StatusAddr string `envconfig:"STATUS_ADDR"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load processes environment variables and populates the Config struct.
func Load() (*Config, error) {
	// A missing .env is normal in containers; only complain about a broken one.
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			log.Printf("Warning: .env file found but could not be loaded: %v", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks enum-like fields and numeric bounds.
func (c *Config) Validate() error {
	switch c.ParseMode {
	case "HTML", "MarkdownV2":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidParseMode, c.ParseMode)
	}

	if c.PollIntervalSeconds <= 0 {
		return ErrInvalidPollInterval
	}
	if c.HTTPTimeout <= 0 {
		return ErrInvalidTimeout
	}

	switch c.ListingMode {
	case "html", "feed":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidListingMode, c.ListingMode)
	}

	switch c.FetchMode {
	case "http", "browser":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFetchMode, c.FetchMode)
	}

	u, err := url.Parse(c.ForumURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidForumURL, c.ForumURL)
	}

	return nil
}

// PollInterval is the look-back window and the sleep between cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// MirrorEnabled reports whether entries are mirrored to Telegraph.
func (c *Config) MirrorEnabled() bool {
	return c.TelegraphToken != ""
}

// ListingURL is the changelog forum page restricted to the last N days.
func (c *Config) ListingURL() string {
	return fmt.Sprintf("%s%s?last_days=%d", strings.TrimRight(c.ForumURL, "/"), c.ChangelogPath, c.LastDays)
}

// FeedURL is the RSS feed XenForo publishes for the changelog forum.
func (c *Config) FeedURL() string {
	return strings.TrimRight(c.ForumURL, "/") + c.ChangelogPath + "index.rss"
}

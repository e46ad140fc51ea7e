// Package storage remembers which changelog entries were already delivered.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib" // registers "pgx"
	_ "modernc.org/sqlite"             // registers "sqlite"

	"github.com/amureki/deadlock-changelog-bot/internal/logger"
	"github.com/amureki/deadlock-changelog-bot/pkg/models"
)

// Ledger records delivered entries so restarts and window overlaps do not
// repost them.
type Ledger interface {
	Seen(ctx context.Context, url string) (bool, error)
	Record(ctx context.Context, entry models.ChangelogEntry) error
}

type dialect struct {
	driver string
	schema string
	insert string
	exists string
}

var postgresDialect = dialect{
	driver: "pgx",
	schema: `
		CREATE TABLE IF NOT EXISTS delivered_entries (
			url          TEXT PRIMARY KEY,
			title        TEXT NOT NULL,
			published_at TIMESTAMPTZ NOT NULL,
			delivered_at TIMESTAMPTZ NOT NULL
		)`,
	insert: `
		INSERT INTO delivered_entries (url, title, published_at, delivered_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO NOTHING`,
	exists: `SELECT EXISTS (SELECT 1 FROM delivered_entries WHERE url = $1)`,
}

var sqliteDialect = dialect{
	driver: "sqlite",
	schema: `
		CREATE TABLE IF NOT EXISTS delivered_entries (
			url          TEXT PRIMARY KEY,
			title        TEXT NOT NULL,
			published_at DATETIME NOT NULL,
			delivered_at DATETIME NOT NULL
		)`,
	insert: `
		INSERT INTO delivered_entries (url, title, published_at, delivered_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING`,
	exists: `SELECT EXISTS (SELECT 1 FROM delivered_entries WHERE url = ?)`,
}

// Storage is a SQL-backed Ledger over Postgres or SQLite.
type Storage struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open connects according to the DSN scheme: postgres:// or postgresql://
// use pgx, sqlite:// uses the pure-Go SQLite driver.
func Open(ctx context.Context, dsn string, log *logger.Logger) (*Storage, error) {
	d, source, err := resolve(dsn)
	if err != nil {
		return nil, err
	}

	db, err := waitForDB(ctx, d.driver, source, log)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Storage{db: db, dialect: d, now: time.Now}, nil
}

func resolve(dsn string) (dialect, string, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgresDialect, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqliteDialect, strings.TrimPrefix(dsn, "sqlite://"), nil
	default:
		return dialect{}, "", fmt.Errorf("unsupported DB_URL scheme: %q", dsn)
	}
}

// waitForDB retries the first ping so the relay can start alongside its database.
func waitForDB(ctx context.Context, driver, source string, log *logger.Logger) (*sql.DB, error) {
	const attempts = 10

	var lastErr error
	for i := 0; i < attempts; i++ {
		db, err := sql.Open(driver, source)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				log.Info("Connected to database", "driver", driver)
				return db, nil
			}
			db.Close()
		}
		lastErr = err
		log.Warn("Waiting for database", "attempt", i+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", attempts, lastErr)
}

func (s *Storage) Seen(ctx context.Context, url string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, s.dialect.exists, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("check delivered %s: %w", url, err)
	}
	return exists, nil
}

func (s *Storage) Record(ctx context.Context, entry models.ChangelogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, entry.URL, entry.Title, entry.PublishedAt.UTC(), s.now().UTC()); err != nil {
		return fmt.Errorf("record delivered %s: %w", entry.URL, err)
	}
	return tx.Commit()
}

func (s *Storage) Close() error {
	return s.db.Close()
}

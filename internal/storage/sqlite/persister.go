// Package sqlite saves crawled pages as rows in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

const schema = `
CREATE TABLE IF NOT EXISTS pages (
	url          TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	body         BLOB NOT NULL,
	content_hash TEXT NOT NULL,
	size         INTEGER NOT NULL,
	saved_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pages_saved_at ON pages(saved_at);
`

// Config locates the database file.
type Config struct {
	Path string `mapstructure:"sqlite_path"`
}

// Page is a stored row.
type Page struct {
	URL         crawler.NormalizedURL
	Name        string
	Body        []byte
	ContentHash string
	SavedAt     time.Time
}

// Persister writes one row per page, keyed by normalized URL.
type Persister struct {
	db     *sql.DB
	path   string
	hasher crawler.Hasher
	clock  crawler.Clock
}

// Open creates the database file and schema if needed.
func Open(ctx context.Context, cfg Config, hasher crawler.Hasher, clock crawler.Clock) (*Persister, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", crawler.ErrInvalidConfig)
	}
	if hasher == nil || clock == nil {
		return nil, fmt.Errorf("%w: sqlite persister needs a hasher and a clock", crawler.ErrInvalidConfig)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Workers share one writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Persister{db: db, path: cfg.Path, hasher: hasher, clock: clock}, nil
}

// Save upserts body under u and returns a sqlite:// URI naming the row.
func (p *Persister) Save(ctx context.Context, u crawler.NormalizedURL, body []byte) (string, error) {
	digest, err := p.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("%w: hash body: %w", crawler.ErrStorage, err)
	}
	if body == nil {
		body = []byte{}
	}
	name := crawler.SafeName(u)
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO pages (url, name, body, content_hash, size, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			name = excluded.name,
			body = excluded.body,
			content_hash = excluded.content_hash,
			size = excluded.size,
			saved_at = excluded.saved_at
	`, u.String(), name, body, digest, len(body), p.clock.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("%w: insert page %s: %w", crawler.ErrStorage, u, err)
	}
	return fmt.Sprintf("sqlite://%s#%s", p.path, name), nil
}

// Get loads the stored page for u. It returns sql.ErrNoRows if absent.
func (p *Persister) Get(ctx context.Context, u crawler.NormalizedURL) (Page, error) {
	page := Page{URL: u}
	err := p.db.QueryRowContext(ctx,
		`SELECT name, body, content_hash, saved_at FROM pages WHERE url = ?`, u.String(),
	).Scan(&page.Name, &page.Body, &page.ContentHash, &page.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, err
	}
	if err != nil {
		return Page{}, fmt.Errorf("query page %s: %w", u, err)
	}
	return page, nil
}

// Count reports how many pages are stored.
func (p *Persister) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (p *Persister) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

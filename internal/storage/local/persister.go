// Package local saves crawled pages to a directory on the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Config captures the parameters for the local filesystem persister.
type Config struct {
	// BaseDir is the directory pages are written into.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Persister writes one file per page under a base directory.
type Persister struct {
	baseDir string
}

// New creates the base directory if needed, checks that it is writable, and
// resolves it to an absolute path.
func New(cfg Config) (*Persister, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("%w: base directory is required", crawler.ErrInvalidConfig)
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", crawler.ErrInvalidConfig, cfg.BaseDir)
	}

	probe, err := os.CreateTemp(cfg.BaseDir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("close probe file: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return nil, fmt.Errorf("remove probe file: %w", err)
	}

	baseDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	return &Persister{baseDir: baseDir}, nil
}

// Save writes body verbatim to a file named after u and returns a file:// URI.
// The write goes through a temporary file and a rename, so readers never see
// a partially written page.
func (p *Persister) Save(ctx context.Context, u crawler.NormalizedURL, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", crawler.ErrStorage, err)
	}
	target := p.Path(u)
	if rel, err := filepath.Rel(p.baseDir, target); err != nil || rel == "." || rel == ".." ||
		strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal detected for %s", crawler.ErrStorage, u)
	}
	// The directory may have been removed since New.
	if err := os.MkdirAll(p.baseDir, 0o750); err != nil {
		return "", fmt.Errorf("%w: create base directory: %w", crawler.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(p.baseDir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %w", crawler.ErrStorage, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: write %s: %w", crawler.ErrStorage, target, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: close %s: %w", crawler.ErrStorage, target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: rename into %s: %w", crawler.ErrStorage, target, err)
	}
	return "file://" + target, nil
}

// Path returns where the page for u is or would be stored.
func (p *Persister) Path(u crawler.NormalizedURL) string {
	return filepath.Join(p.baseDir, crawler.SafeName(u))
}

// Package memory keeps crawled pages in memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Persister stores page bodies in a map keyed by URL.
type Persister struct {
	mu    sync.RWMutex
	pages map[crawler.NormalizedURL][]byte
}

// New creates an empty in-memory persister.
func New() *Persister {
	return &Persister{pages: make(map[crawler.NormalizedURL][]byte)}
}

// Save copies body and returns a memory:// URI.
func (p *Persister) Save(ctx context.Context, u crawler.NormalizedURL, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", crawler.ErrStorage, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages[u] = append([]byte(nil), body...)
	return "memory://" + crawler.SafeName(u), nil
}

// Get returns the stored body for u.
func (p *Persister) Get(u crawler.NormalizedURL) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	body, ok := p.pages[u]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), body...), true
}

// Len reports how many pages are stored.
func (p *Persister) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pages)
}

// URLs returns the stored URLs in sorted order.
func (p *Persister) URLs() []crawler.NormalizedURL {
	p.mu.RLock()
	out := make([]crawler.NormalizedURL, 0, len(p.pages))
	for u := range p.pages {
		out = append(out, u)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

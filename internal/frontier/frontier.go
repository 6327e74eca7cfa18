// Package frontier provides the shared crawl queue together with the
// outstanding-work accounting used to detect when a crawl has run dry.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

var (
	// ErrEmpty is returned by Pop when no URL arrived before the timeout.
	ErrEmpty = errors.New("frontier empty")
	// ErrClosed is returned by Pop once the frontier has been closed.
	ErrClosed = errors.New("frontier closed")
)

// Frontier is an unbounded FIFO of admitted URLs. Every successful Pop raises
// the outstanding counter and every MarkDone lowers it; both happen under the
// same lock as the queue itself, so IsQuiescent observes a consistent state.
//
// Waiters are woken through a broadcast channel that is closed and replaced on
// every state change.
type Frontier struct {
	mu          sync.Mutex
	items       []crawler.NormalizedURL
	outstanding int
	closed      bool
	changed     chan struct{}
}

// New returns an empty, open frontier.
func New() *Frontier {
	return &Frontier{
		changed: make(chan struct{}),
	}
}

// Push appends u. It never blocks; pushes after Close are dropped.
func (f *Frontier) Push(u crawler.NormalizedURL) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.items = append(f.items, u)
	f.broadcastLocked()
}

// Pop removes the oldest URL, waiting up to timeout for one to arrive. The
// caller owns the returned URL until it calls MarkDone.
func (f *Frontier) Pop(ctx context.Context, timeout time.Duration) (crawler.NormalizedURL, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return "", ErrClosed
		}
		if len(f.items) > 0 {
			u := f.items[0]
			f.items[0] = ""
			f.items = f.items[1:]
			f.outstanding++
			f.mu.Unlock()
			return u, nil
		}
		wait := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("pop canceled: %w", ctx.Err())
		case <-timer.C:
			return "", ErrEmpty
		case <-wait:
		}
	}
}

// MarkDone releases one popped URL. Callers must have pushed every link
// discovered from that URL before calling it.
func (f *Frontier) MarkDone() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outstanding == 0 {
		panic("frontier: MarkDone without matching Pop")
	}
	f.outstanding--
	f.broadcastLocked()
}

// IsQuiescent reports whether the queue is empty and nobody holds a popped URL.
// Once true it stays true: only holders of popped URLs push new work.
func (f *Frontier) IsQuiescent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quiescentLocked()
}

// WaitQuiescent blocks until the frontier is quiescent or ctx ends.
func (f *Frontier) WaitQuiescent(ctx context.Context) error {
	for {
		f.mu.Lock()
		if f.quiescentLocked() {
			f.mu.Unlock()
			return nil
		}
		wait := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for quiescence: %w", ctx.Err())
		case <-wait:
		}
	}
}

// Len returns the number of queued URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Outstanding returns the number of popped URLs not yet marked done.
func (f *Frontier) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outstanding
}

// Close stops the frontier. Blocked and future Pops return ErrClosed; queued
// URLs are discarded. Closing twice is safe.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.items = nil
	f.broadcastLocked()
}

func (f *Frontier) quiescentLocked() bool {
	return len(f.items) == 0 && f.outstanding == 0
}

func (f *Frontier) broadcastLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

package crawler

import "sync"

// Gate is the only place that decides whether a URL may be fetched. It owns the
// visited set and the page budget and mutates both in one critical section, so
// a URL is admitted at most once and never more than maxPages URLs in total.
type Gate struct {
	mu       sync.Mutex
	visited  map[NormalizedURL]struct{}
	maxPages int
	admitted int
}

// NewGate returns an empty gate with the given page budget.
func NewGate(maxPages int) *Gate {
	return &Gate{
		visited:  make(map[NormalizedURL]struct{}),
		maxPages: maxPages,
	}
}

// TryAdmit claims u for fetching. It returns true for exactly one caller per
// URL while budget remains; every other call returns false and changes nothing.
func (g *Gate) TryAdmit(u NormalizedURL) bool {
	if u == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.admitted >= g.maxPages {
		return false
	}
	if _, seen := g.visited[u]; seen {
		return false
	}
	g.visited[u] = struct{}{}
	g.admitted++
	return true
}

// Admitted returns how many URLs have been claimed so far.
func (g *Gate) Admitted() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.admitted
}

// Exhausted reports whether the page budget has been used up.
func (g *Gate) Exhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.admitted >= g.maxPages
}

// MarkVisited records u as visited without charging the budget. It is used for
// redirect targets, whose content is saved under the URL that was admitted.
// It returns false when u was already visited.
func (g *Gate) MarkVisited(u NormalizedURL) bool {
	if u == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, seen := g.visited[u]; seen {
		return false
	}
	g.visited[u] = struct{}{}
	return true
}

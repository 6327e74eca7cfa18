package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves a page. Implementations must only return a body when the
// fetch succeeded; any transport failure or non-success status is an error.
type Fetcher interface {
	Fetch(ctx context.Context, u NormalizedURL) (FetchResponse, error)
}

// LinkExtractor pulls raw href values out of a page body.
type LinkExtractor interface {
	ExtractLinks(body []byte) ([]string, error)
}

// Persister stores a page body verbatim and returns a locator for it.
type Persister interface {
	Save(ctx context.Context, u NormalizedURL, body []byte) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

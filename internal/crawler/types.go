package crawler

import (
	"net/http"
	"time"
)

// CrawlResult is the per-URL outcome reported by the pipeline.
type CrawlResult string

// Pipeline outcomes. Results are used for logging and statistics only.
const (
	ResultSaved       CrawlResult = "saved"
	ResultFetchFailed CrawlResult = "fetch_failed"
	ResultStoreFailed CrawlResult = "store_failed"
	ResultOutOfScope  CrawlResult = "out_of_scope"
)

// Failed reports whether the result counts against the failed-pages total.
func (r CrawlResult) Failed() bool {
	return r == ResultFetchFailed || r == ResultStoreFailed
}

// FetchResponse is the successful result of a Fetcher call.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Stats summarizes a finished (or interrupted) crawl.
type Stats struct {
	CrawlID         string        `json:"crawl_id" yaml:"crawl_id"`
	Seed            string        `json:"seed" yaml:"seed"`
	PagesSaved      int           `json:"pages_saved" yaml:"pages_saved"`
	PagesFailed     int           `json:"pages_failed" yaml:"pages_failed"`
	FetchFailures   int           `json:"fetch_failures" yaml:"fetch_failures"`
	StoreFailures   int           `json:"store_failures" yaml:"store_failures"`
	Admitted        int           `json:"admitted" yaml:"admitted"`
	LinksDiscovered int           `json:"links_discovered" yaml:"links_discovered"`
	LinksOutOfScope int           `json:"links_out_of_scope" yaml:"links_out_of_scope"`
	LinksRejected   int           `json:"links_rejected" yaml:"links_rejected"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
}

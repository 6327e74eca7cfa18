package crawler

import "sync/atomic"

// Recorder accumulates per-URL outcomes from concurrent workers.
type Recorder struct {
	saved           atomic.Int64
	fetchFailures   atomic.Int64
	storeFailures   atomic.Int64
	linksDiscovered atomic.Int64
	linksOutOfScope atomic.Int64
	linksRejected   atomic.Int64
}

// NewRecorder returns a zeroed Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record counts a pipeline outcome. OutOfScope results are counted as links.
func (r *Recorder) Record(result CrawlResult) {
	switch result {
	case ResultSaved:
		r.saved.Add(1)
	case ResultFetchFailed:
		r.fetchFailures.Add(1)
	case ResultStoreFailed:
		r.storeFailures.Add(1)
	case ResultOutOfScope:
		r.linksOutOfScope.Add(1)
	}
}

// LinkDiscovered counts a candidate link seen in a page body.
func (r *Recorder) LinkDiscovered() {
	r.linksDiscovered.Add(1)
}

// LinkRejected counts an in-scope link refused by the admission gate.
func (r *Recorder) LinkRejected() {
	r.linksRejected.Add(1)
}

// Fill copies the current counters into stats.
func (r *Recorder) Fill(stats *Stats) {
	stats.PagesSaved = int(r.saved.Load())
	stats.FetchFailures = int(r.fetchFailures.Load())
	stats.StoreFailures = int(r.storeFailures.Load())
	stats.PagesFailed = stats.FetchFailures + stats.StoreFailures
	stats.LinksDiscovered = int(r.linksDiscovered.Load())
	stats.LinksOutOfScope = int(r.linksOutOfScope.Load())
	stats.LinksRejected = int(r.linksRejected.Load())
}

// Package dispatcher runs a crawl: it seeds the frontier, fans work out to a
// fixed pool of workers, and shuts the pool down once the frontier is
// quiescent.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitecrawler/internal/clock/system"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/frontier"
	"github.com/JakeFAU/sitecrawler/internal/metrics"
	"github.com/JakeFAU/sitecrawler/internal/worker"
)

// ErrBusy is returned when Crawl is called while another crawl is running.
var ErrBusy = errors.New("crawl already running")

const depthSampleInterval = 250 * time.Millisecond

// State is the coordinator lifecycle phase.
type State string

// Lifecycle phases, in order.
const (
	StateIdle     State = "idle"
	StateSeeding  State = "seeding"
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateDone     State = "done"
)

// Config bounds a crawl.
type Config struct {
	MaxThreads  int
	MaxPages    int
	PopTimeout  time.Duration
	ComparePort bool
}

// Validate reports whether the bounds describe a runnable crawl.
func (c Config) Validate() error {
	if c.MaxThreads < 1 {
		return fmt.Errorf("%w: max threads must be at least 1, got %d", crawler.ErrInvalidConfig, c.MaxThreads)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("%w: max pages must be at least 1, got %d", crawler.ErrInvalidConfig, c.MaxPages)
	}
	if c.PopTimeout < 0 {
		return fmt.Errorf("%w: pop timeout must not be negative", crawler.ErrInvalidConfig)
	}
	return nil
}

// Snapshot is a point-in-time view of the current or most recent crawl.
type Snapshot struct {
	State       State  `json:"state"`
	CrawlID     string `json:"crawl_id,omitempty"`
	Seed        string `json:"seed,omitempty"`
	Admitted    int    `json:"admitted"`
	PagesSaved  int    `json:"pages_saved"`
	PagesFailed int    `json:"pages_failed"`
	Queued      int    `json:"queued"`
	Outstanding int    `json:"outstanding"`
}

type run struct {
	crawlID  string
	seed     crawler.NormalizedURL
	gate     *crawler.Gate
	frontier *frontier.Frontier
	recorder *crawler.Recorder
}

// Dispatcher coordinates crawls over a shared set of collaborators.
type Dispatcher struct {
	cfg       Config
	fetcher   crawler.Fetcher
	persister crawler.Persister
	extractor crawler.LinkExtractor
	clock     crawler.Clock
	ids       crawler.IDGenerator
	logger    *zap.Logger

	mu    sync.Mutex
	state State
	last  *run
}

// New creates a Dispatcher. A nil clock falls back to the system clock and a nil
// ID generator leaves crawl IDs empty.
func New(
	cfg Config,
	fetcher crawler.Fetcher,
	persister crawler.Persister,
	extractor crawler.LinkExtractor,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	metrics.Init()
	return &Dispatcher{
		cfg:       cfg,
		fetcher:   fetcher,
		persister: persister,
		extractor: extractor,
		clock:     clock,
		ids:       ids,
		logger:    logger,
		state:     StateIdle,
	}
}

// Crawl fetches and saves every same-origin page reachable from seedURL,
// up to the configured page budget, and returns once no URL is queued or in
// flight. Page-level failures are counted in the returned Stats, not returned
// as errors. If ctx is canceled the pool stops taking new URLs, in-flight
// pages finish, and the partial Stats are returned alongside ctx's error.
func (d *Dispatcher) Crawl(ctx context.Context, seedURL string) (crawler.Stats, error) {
	if err := d.validate(); err != nil {
		return crawler.Stats{}, err
	}
	seed, err := crawler.Normalize("", seedURL)
	if err != nil {
		return crawler.Stats{}, fmt.Errorf("seed %q: %w", seedURL, err)
	}
	crawlID, err := d.newID()
	if err != nil {
		return crawler.Stats{}, err
	}

	r := &run{
		crawlID:  crawlID,
		seed:     seed,
		gate:     crawler.NewGate(d.cfg.MaxPages),
		frontier: frontier.New(),
		recorder: crawler.NewRecorder(),
	}
	if err := d.begin(r); err != nil {
		return crawler.Stats{}, err
	}

	stats := crawler.Stats{
		CrawlID:   crawlID,
		Seed:      seed.String(),
		StartedAt: d.clock.Now(),
	}
	logger := d.logger.With(zap.String("crawl_id", crawlID), zap.String("seed", seed.String()))
	logger.Info("crawl starting",
		zap.Int("max_threads", d.cfg.MaxThreads),
		zap.Int("max_pages", d.cfg.MaxPages),
	)

	r.gate.TryAdmit(seed)
	r.frontier.Push(seed)

	var pool errgroup.Group
	for i := 0; i < d.cfg.MaxThreads; i++ {
		w := worker.New(
			r.frontier,
			r.gate,
			d.fetcher,
			d.persister,
			d.extractor,
			r.recorder,
			worker.Config{
				Seed:       seed,
				Origin:     crawler.OriginPolicy{ComparePort: d.cfg.ComparePort},
				PopTimeout: d.cfg.PopTimeout,
			},
			logger.Named("worker").With(zap.Int("index", i)),
		)
		pool.Go(func() error {
			return w.Run(ctx)
		})
	}
	d.setState(StateRunning)

	stopSampler := sampleDepth(r.frontier)
	waitErr := r.frontier.WaitQuiescent(ctx)

	d.setState(StateDraining)
	r.frontier.Close()
	poolErr := pool.Wait()
	stopSampler()

	r.recorder.Fill(&stats)
	stats.Admitted = r.gate.Admitted()
	stats.FinishedAt = d.clock.Now()
	stats.Duration = stats.FinishedAt.Sub(stats.StartedAt)
	d.setState(StateDone)

	switch {
	case poolErr != nil:
		metrics.ObserveCrawl("failed")
		logger.Error("worker pool failed", zap.Error(poolErr))
		return stats, fmt.Errorf("worker pool: %w", poolErr)
	case waitErr != nil:
		metrics.ObserveCrawl("canceled")
		logger.Warn("crawl canceled", zap.Error(waitErr), zap.Int("pages_saved", stats.PagesSaved))
		return stats, fmt.Errorf("crawl interrupted: %w", waitErr)
	}
	metrics.ObserveCrawl("completed")
	logger.Info("crawl finished",
		zap.Int("pages_saved", stats.PagesSaved),
		zap.Int("pages_failed", stats.PagesFailed),
		zap.Int("admitted", stats.Admitted),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// State returns the current lifecycle phase.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Snapshot reports progress of the running crawl, or the final counters of
// the last one.
func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	state, r := d.state, d.last
	d.mu.Unlock()

	snap := Snapshot{State: state}
	if r == nil {
		return snap
	}
	var stats crawler.Stats
	r.recorder.Fill(&stats)
	snap.CrawlID = r.crawlID
	snap.Seed = r.seed.String()
	snap.Admitted = r.gate.Admitted()
	snap.PagesSaved = stats.PagesSaved
	snap.PagesFailed = stats.PagesFailed
	snap.Queued = r.frontier.Len()
	snap.Outstanding = r.frontier.Outstanding()
	return snap
}

func (d *Dispatcher) validate() error {
	if err := d.cfg.Validate(); err != nil {
		return err
	}
	if d.fetcher == nil || d.persister == nil || d.extractor == nil {
		return fmt.Errorf("%w: fetcher, persister and link extractor are required", crawler.ErrInvalidConfig)
	}
	return nil
}

func (d *Dispatcher) newID() (string, error) {
	if d.ids == nil {
		return "", nil
	}
	id, err := d.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate crawl id: %w", err)
	}
	return id, nil
}

func (d *Dispatcher) begin(r *run) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case StateSeeding, StateRunning, StateDraining:
		return ErrBusy
	}
	d.state = StateSeeding
	d.last = r
	return nil
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// sampleDepth publishes the frontier length until the returned func is called.
func sampleDepth(f *frontier.Frontier) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(depthSampleInterval)
		defer ticker.Stop()
		for {
			metrics.SetFrontierDepth(f.Len())
			select {
			case <-stop:
				metrics.SetFrontierDepth(0)
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

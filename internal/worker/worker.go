// Package worker implements the per-URL fetch/save/parse pipeline and the loop
// that drains the frontier.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/frontier"
	"github.com/JakeFAU/sitecrawler/internal/metrics"
)

const defaultPopTimeout = time.Second

// Frontier is the subset of the shared queue a worker needs.
type Frontier interface {
	Push(u crawler.NormalizedURL)
	Pop(ctx context.Context, timeout time.Duration) (crawler.NormalizedURL, error)
	MarkDone()
	IsQuiescent() bool
}

// Admitter decides whether a discovered URL may be crawled.
type Admitter interface {
	TryAdmit(u crawler.NormalizedURL) bool
	MarkVisited(u crawler.NormalizedURL) bool
	Exhausted() bool
}

// Config controls Worker behavior.
type Config struct {
	// Seed anchors the origin check for discovered links.
	Seed       crawler.NormalizedURL
	Origin     crawler.OriginPolicy
	PopTimeout time.Duration
}

// Worker pulls URLs from the frontier and runs the pipeline on each.
type Worker struct {
	frontier  Frontier
	gate      Admitter
	fetcher   crawler.Fetcher
	persister crawler.Persister
	extractor crawler.LinkExtractor
	recorder  *crawler.Recorder
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	frontier Frontier,
	gate Admitter,
	fetcher crawler.Fetcher,
	persister crawler.Persister,
	extractor crawler.LinkExtractor,
	recorder *crawler.Recorder,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = crawler.NewRecorder()
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = defaultPopTimeout
	}
	metrics.Init()
	return &Worker{
		frontier:  frontier,
		gate:      gate,
		fetcher:   fetcher,
		persister: persister,
		extractor: extractor,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, draining the frontier until it is closed, it stays quiescent
// past a pop timeout, or ctx is canceled. Cancellation is only observed
// between URLs; a URL that has been popped is always processed to completion.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		u, err := w.frontier.Pop(ctx, w.cfg.PopTimeout)
		switch {
		case err == nil:
		case errors.Is(err, frontier.ErrEmpty):
			if w.frontier.IsQuiescent() {
				w.logger.Debug("frontier quiescent; worker exiting")
				return nil
			}
			continue
		case errors.Is(err, frontier.ErrClosed), ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("frontier pop: %w", err)
		}

		if ctx.Err() != nil {
			w.frontier.MarkDone()
			return nil
		}
		w.handle(ctx, u)
	}
}

func (w *Worker) handle(ctx context.Context, u crawler.NormalizedURL) {
	defer w.frontier.MarkDone()
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	result := crawler.ResultFetchFailed
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("pipeline panic", zap.String("url", u.String()), zap.Any("panic", r))
		}
		w.recorder.Record(result)
		metrics.ObservePage(string(result))
	}()
	// In-flight fetches finish even when the crawl is being stopped.
	result = w.Process(context.WithoutCancel(ctx), u)
}

// Process fetches u, saves its body, and admits same-origin links it contains.
// A failed fetch is never handed to the persister or the link extractor.
func (w *Worker) Process(ctx context.Context, u crawler.NormalizedURL) crawler.CrawlResult {
	logger := w.logger.With(zap.String("url", u.String()))
	logger.Info("Crawling")

	resp, err := w.fetcher.Fetch(crawler.WithRedirectCheck(ctx, w.redirectCheck(u)), u)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		var te *crawler.TransportError
		if errors.As(err, &te) && te.StatusCode != 0 {
			fields = append(fields, zap.Int("status_code", te.StatusCode))
		}
		logger.Warn("fetch failed", fields...)
		return crawler.ResultFetchFailed
	}
	metrics.ObserveFetch(resp.Duration, len(resp.Body))

	result := crawler.ResultSaved
	location, err := w.persister.Save(ctx, u, resp.Body)
	if err != nil {
		logger.Error("save failed", zap.Error(err))
		result = crawler.ResultStoreFailed
	} else {
		logger.Debug("page saved",
			zap.String("location", location),
			zap.Int("bytes", len(resp.Body)),
			zap.Int("status_code", resp.StatusCode),
		)
	}

	w.enqueueLinks(logger, w.linkBase(u, resp), resp.Body)
	return result
}

// redirectCheck claims each redirect target of u so no page is downloaded
// twice: a target that was already admitted ends the fetch, any other is
// recorded as visited and its content is saved under u.
func (w *Worker) redirectCheck(u crawler.NormalizedURL) crawler.RedirectCheck {
	claimed := map[crawler.NormalizedURL]struct{}{u: {}}
	return func(to crawler.NormalizedURL) error {
		if _, ok := claimed[to]; ok {
			return nil
		}
		if !w.gate.MarkVisited(to) {
			return fmt.Errorf("%w: %s is crawled on its own", crawler.ErrRedirectRefused, to)
		}
		claimed[to] = struct{}{}
		return nil
	}
}

// linkBase prefers the post-redirect URL for resolving relative links.
func (w *Worker) linkBase(u crawler.NormalizedURL, resp crawler.FetchResponse) crawler.NormalizedURL {
	if resp.URL == "" {
		return u
	}
	final, err := crawler.Normalize("", resp.URL)
	if err != nil {
		return u
	}
	return final
}

func (w *Worker) enqueueLinks(logger *zap.Logger, base crawler.NormalizedURL, body []byte) {
	links, err := w.extractor.ExtractLinks(body)
	if err != nil {
		logger.Debug("link extraction failed; treating page as having no links", zap.Error(err))
		return
	}
	admitted, rejected := 0, 0
	for _, raw := range links {
		w.recorder.LinkDiscovered()
		next, err := crawler.Normalize(base, raw)
		if err != nil || !w.cfg.Origin.SameOrigin(w.cfg.Seed, next) {
			w.recorder.Record(crawler.ResultOutOfScope)
			metrics.ObserveLink(metrics.LinkOutOfScope)
			continue
		}
		if !w.gate.TryAdmit(next) {
			w.recorder.LinkRejected()
			metrics.ObserveLink(metrics.LinkRejected)
			rejected++
			continue
		}
		w.frontier.Push(next)
		metrics.ObserveLink(metrics.LinkAdmitted)
		admitted++
	}
	logger.Debug("links processed",
		zap.Int("found", len(links)),
		zap.Int("admitted", admitted),
		zap.Int("rejected", rejected),
		zap.Bool("budget_exhausted", rejected > 0 && w.gate.Exhausted()),
	)
}

// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/api"
	"github.com/JakeFAU/sitecrawler/internal/clock/system"
	"github.com/JakeFAU/sitecrawler/internal/config"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/sitecrawler/internal/fetcher/colly"
	"github.com/JakeFAU/sitecrawler/internal/hash/sha256"
	"github.com/JakeFAU/sitecrawler/internal/id/uuid"
	"github.com/JakeFAU/sitecrawler/internal/links"
	"github.com/JakeFAU/sitecrawler/internal/logging"
	"github.com/JakeFAU/sitecrawler/internal/storage/gcs"
	"github.com/JakeFAU/sitecrawler/internal/storage/local"
	"github.com/JakeFAU/sitecrawler/internal/storage/memory"
	"github.com/JakeFAU/sitecrawler/internal/storage/sqlite"
)

const shutdownTimeout = 5 * time.Second

// App holds the services a crawl run needs.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	ownsLogger bool
	persister  crawler.Persister
	closers    []func() error
	dispatcher *dispatcher.Dispatcher

	server    *http.Server
	listener  net.Listener
	serverErr chan error
}

// New builds every service described by cfg. A nil logger is built from the
// logging section of cfg. Storage is opened eagerly so misconfiguration fails
// before any page is fetched.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	if a.logger == nil {
		built, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		a.logger = built
		a.ownsLogger = true
	}

	persister, closer, err := newPersister(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	a.persister = persister
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.logger.Info("storage ready", zap.String("backend", cfg.Storage.Backend))

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.HTTPTimeout(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Origin:       crawler.OriginPolicy{ComparePort: cfg.Crawler.ComparePort},
	})

	a.dispatcher = dispatcher.New(
		dispatcher.Config{
			MaxThreads:  cfg.Crawler.MaxThreads,
			MaxPages:    cfg.Crawler.MaxPages,
			PopTimeout:  cfg.Crawler.PopTimeout,
			ComparePort: cfg.Crawler.ComparePort,
		},
		fetcher,
		persister,
		links.New(),
		system.New(),
		uuid.New(),
		a.logger.Named("dispatcher"),
	)
	return a, nil
}

func newPersister(ctx context.Context, cfg config.Config) (crawler.Persister, func() error, error) {
	switch cfg.Storage.Backend {
	case config.BackendLocal:
		p, err := local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
		return p, nil, err
	case config.BackendMemory:
		return memory.New(), nil, nil
	case config.BackendSQLite:
		p, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Storage.SQLitePath}, sha256.New(), system.New())
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case config.BackendGCS:
		p, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown storage backend %q", crawler.ErrInvalidConfig, cfg.Storage.Backend)
	}
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Dispatcher returns the crawl coordinator.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// Persister returns the configured page store.
func (a *App) Persister() crawler.Persister {
	return a.persister
}

// StartServer starts the status server if it is enabled. It returns once the
// listener is bound.
func (a *App) StartServer() error {
	if !a.cfg.Server.Enabled || a.server != nil {
		return nil
	}
	addr := net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           api.NewServer(a.dispatcher, a.logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.serverErr = make(chan error, 1)
	go func() {
		err := a.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		a.serverErr <- err
	}()
	a.logger.Info("status server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// ServerAddr returns the bound status server address, or "" if it is not running.
func (a *App) ServerAddr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Close stops the status server, releases storage, and flushes the logger.
func (a *App) Close() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown status server: %w", err))
		}
		if err := <-a.serverErr; err != nil {
			errs = append(errs, fmt.Errorf("status server: %w", err))
		}
		a.server = nil
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("error closing storage", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.ownsLogger {
		// Sync on stderr commonly fails with EINVAL; there is nothing to do about it.
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

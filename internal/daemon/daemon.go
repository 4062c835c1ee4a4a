package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"tankobon/internal/acquire"
	"tankobon/internal/catalog"
	"tankobon/internal/config"
	"tankobon/internal/fetch"
	"tankobon/internal/logging"
	"tankobon/internal/progress"
	"tankobon/internal/refresh"
	"tankobon/internal/source"
	"tankobon/internal/tags"
)

// Daemon owns the acquisition services and enforces single-instance execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *catalog.Store
	resolver     *source.Client
	registry     *progress.Registry
	orchestrator *acquire.Orchestrator
	scheduler    *refresh.Scheduler
	api          *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	CatalogPath    string
	LockFilePath   string
	APIAddress     string
	RoutingVersion string
	Tasks          map[string]progress.Entry
}

// New constructs a daemon. client is shared by the resolver and the fetcher;
// nil selects each package's default.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger, client *http.Client) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	var resolver *source.Client
	var fetcher *fetch.Fetcher
	if client != nil {
		resolver = source.NewClient(cfg, client)
		fetcher = fetch.New(cfg, client, logger)
	} else {
		resolver = source.NewClient(cfg, nil)
		fetcher = fetch.New(cfg, nil, logger)
	}
	registry := progress.NewRegistry()

	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        store,
		resolver:     resolver,
		registry:     registry,
		orchestrator: acquire.New(cfg, resolver, store, fetcher, registry, logger),
		scheduler:    refresh.NewScheduler(resolver, cfg.RefreshInterval(), logger),
		lockPath:     cfg.LockPath(),
		lock:         flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, schedules routing refreshes and begins
// serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tankobond instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start refresh: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.scheduler.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("tankobond started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops serving, cancels in-flight acquisitions, waits for them and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop(d.cfg.ShutdownTimeout())
	d.orchestrator.Close()
	d.scheduler.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.registry.Clear()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("tankobond stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Submit queues an acquisition; see acquire.Orchestrator.Submit.
func (d *Daemon) Submit(ctx context.Context, sourceID string, defs map[string]tags.Definition) (acquire.Outcome, error) {
	return d.orchestrator.Submit(ctx, sourceID, defs)
}

// Orchestrator exposes the acquisition orchestrator.
func (d *Daemon) Orchestrator() *acquire.Orchestrator {
	return d.orchestrator
}

// Registry exposes the task status registry.
func (d *Daemon) Registry() *progress.Registry {
	return d.registry
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		CatalogPath:    d.store.Path(),
		LockFilePath:   d.lockPath,
		APIAddress:     d.api.address(),
		RoutingVersion: d.resolver.RoutingVersion(),
		Tasks:          d.registry.Snapshot(),
	}
}

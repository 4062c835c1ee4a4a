package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"tankobon/internal/archive"
	"tankobon/internal/config"
	"tankobon/internal/logging"
	"tankobon/internal/progress"
	"tankobon/internal/services"
	"tankobon/internal/source"
	"tankobon/internal/tags"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("orchestrator closed")

// preexistingMessage is published when a staged artifact from an earlier run
// blocks a new one.
const preexistingMessage = "staged artifact already exists, manual intervention required"

// Orchestrator composes resolver, reconciler, fetcher and committer into
// acquisition jobs.
type Orchestrator struct {
	resolver   source.Resolver
	catalog    Catalog
	reconciler *tags.Reconciler
	fetcher    Fetcher
	committer  *archive.Committer
	registry   *progress.Registry
	logger     *slog.Logger

	systemID   int
	stagingDir string
	anonymous  string

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

// New constructs an orchestrator. The registry must outlive it.
func New(cfg *config.Config, resolver source.Resolver, cat Catalog, fetcher Fetcher, registry *progress.Registry, logger *slog.Logger) *Orchestrator {
	logger = logging.NewComponentLogger(logger, "acquire")
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		resolver:   resolver,
		catalog:    cat,
		reconciler: tags.NewReconciler(cat),
		fetcher:    fetcher,
		committer:  archive.NewCommitter(cfg.Paths.ArchiveDir, cat, logger),
		registry:   registry,
		logger:     logger,
		systemID:   cfg.Source.SystemID,
		stagingDir: cfg.Paths.StagingDir,
		anonymous:  cfg.Catalog.AnonymousAuthor,
		baseCtx:    baseCtx,
		cancel:     cancel,
	}
}

// Committer exposes the archive committer so callers can adjust it.
func (o *Orchestrator) Committer() *archive.Committer {
	return o.committer
}

// StagedPath returns the staging location for a source identifier.
func (o *Orchestrator) StagedPath(sourceID string) string {
	return filepath.Join(o.stagingDir, sourceID+".zip")
}

// Run executes a whole job in the calling goroutine.
func (o *Orchestrator) Run(ctx context.Context, sourceID string, defs map[string]tags.Definition) (Outcome, error) {
	j, outcome, err := o.prepare(ctx, sourceID, defs)
	if err != nil || j == nil {
		return outcome, err
	}
	o.registry.Start(j.label, string(StateFetching))
	return o.execute(ctx, j)
}

// Submit validates a job synchronously and continues fetch and commit in the
// background. The returned outcome redirects to the job's status endpoint.
func (o *Orchestrator) Submit(ctx context.Context, sourceID string, defs map[string]tags.Definition) (Outcome, error) {
	j, outcome, err := o.prepare(ctx, sourceID, defs)
	if err != nil || j == nil {
		return outcome, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return Outcome{}, ErrClosed
	}
	o.registry.Start(j.label, string(StateFetching))
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, _ = o.execute(o.baseCtx, j)
	}()
	return Outcome{
		State:    StateAccepted,
		Label:    j.label,
		Redirect: StatusPath(j.label),
	}, nil
}

// MissingTags lists the record's tags absent from the catalog. An already
// archived record has none.
func (o *Orchestrator) MissingTags(ctx context.Context, sourceID string) ([]tags.Missing, error) {
	sourceID, err := validateSourceID(sourceID)
	if err != nil {
		return nil, err
	}
	doc, err := o.catalog.DocumentBySource(ctx, o.systemID, sourceID)
	if err != nil {
		return nil, services.Wrap(services.ErrCatalogRead, string(StateResolving), "lookup source link", sourceID, err)
	}
	if doc != nil {
		return []tags.Missing{}, nil
	}
	rec, err := o.resolve(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	missing, err := o.reconciler.Missing(ctx, rec.Tags)
	if err != nil {
		return nil, err
	}
	if missing == nil {
		missing = []tags.Missing{}
	}
	return missing, nil
}

// DownloadURLs resolves the record and maps each fragment name to its URL.
func (o *Orchestrator) DownloadURLs(ctx context.Context, sourceID string) (map[string]string, error) {
	sourceID, err := validateSourceID(sourceID)
	if err != nil {
		return nil, err
	}
	rec, err := o.resolve(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	urls, err := o.resolver.FragmentURLs(ctx, rec.Fragments)
	if err != nil {
		return nil, services.Wrap(services.ErrResolution, string(StateResolving), "fragment urls", sourceID, err)
	}
	return urls, nil
}

// Wait blocks until every background job has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close stops accepting jobs, cancels running ones and waits for them.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

// StatusPath is the API path where a job's progress can be polled.
func StatusPath(label string) string {
	return "/api/status/" + url.PathEscape(label)
}

// DocumentPath is the path of a catalogued document.
func DocumentPath(id int64) string {
	return fmt.Sprintf("/documents/%d", id)
}

func (o *Orchestrator) prepare(ctx context.Context, sourceID string, defs map[string]tags.Definition) (*job, Outcome, error) {
	sourceID, err := validateSourceID(sourceID)
	if err != nil {
		return nil, Outcome{}, err
	}
	ctx = services.WithSourceID(ctx, sourceID)

	rec, err := o.resolve(ctx, sourceID)
	if err != nil {
		return nil, Outcome{State: StateFailed}, err
	}
	label := rec.Label()
	ctx = services.WithJobLabel(ctx, label)
	logger := logging.WithContext(ctx, o.logger)

	doc, err := o.catalog.DocumentBySource(ctx, o.systemID, sourceID)
	if err != nil {
		return nil, Outcome{State: StateFailed, Label: label}, services.Wrap(services.ErrCatalogRead, string(StateResolving), "lookup source link", sourceID, err)
	}
	if doc != nil {
		o.registry.Remove(label)
		logger.Info("source already archived", logging.Int64("document_id", doc.ID))
		return nil, Outcome{
			State:      StateAlreadyArchived,
			Label:      label,
			DocumentID: doc.ID,
			Redirect:   DocumentPath(doc.ID),
		}, nil
	}

	stagedPath := o.StagedPath(sourceID)
	if _, err := os.Stat(stagedPath); err == nil {
		o.registry.Start(label, string(StateFailed))
		o.registry.Fail(label, preexistingMessage)
		logging.WarnWithContext(logger, "staged artifact from an earlier run found", "preexisting_staged_artifact",
			logging.String("staged_path", stagedPath),
			logging.String(logging.FieldErrorHint, "inspect with 'tankobon staging' and remove or commit it by hand"),
		)
		return nil, Outcome{State: StateFailed, Label: label}, services.Wrap(services.ErrPreexistingState, string(StateResolving), "staging gate", stagedPath, nil)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, Outcome{State: StateFailed, Label: label}, services.Wrap(services.ErrPreexistingState, string(StateResolving), "staging gate", stagedPath, err)
	}

	reconciled, err := o.reconciler.Reconcile(services.WithStage(ctx, string(StateReconcilingTags)), rec.Tags, defs)
	if err != nil {
		logger.Info("tag reconciliation incomplete", logging.Error(err))
		return nil, Outcome{State: StateFailed, Label: label}, err
	}

	urls, err := o.resolver.FragmentURLs(ctx, rec.Fragments)
	if err != nil {
		return nil, Outcome{State: StateFailed, Label: label}, services.Wrap(services.ErrResolution, string(StateResolving), "fragment urls", sourceID, err)
	}

	requestID, _ := services.RequestIDFromContext(ctx)
	return &job{
		requestID:  requestID,
		sourceID:   sourceID,
		record:     rec,
		label:      label,
		tags:       reconciled,
		urls:       urls,
		stagedPath: stagedPath,
	}, Outcome{}, nil
}

func (o *Orchestrator) resolve(ctx context.Context, sourceID string) (*source.Record, error) {
	rec, err := o.resolver.Resolve(ctx, sourceID)
	if err != nil {
		return nil, services.Wrap(services.ErrResolution, string(StateResolving), "resolve", sourceID, err)
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrResolution, string(StateResolving), "resolve", sourceID, services.ErrNotFound)
	}
	return rec, nil
}

func validateSourceID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", services.Wrap(services.ErrResolution, string(StateResolving), "validate", fmt.Sprintf("invalid source identifier %q", id), nil)
	}
	return id, nil
}

package acquire_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"tankobon/internal/acquire"
	"tankobon/internal/catalog"
	"tankobon/internal/config"
	"tankobon/internal/fetch"
	"tankobon/internal/logging"
	"tankobon/internal/progress"
	"tankobon/internal/services"
	"tankobon/internal/source"
	"tankobon/internal/tags"
	"tankobon/internal/testsupport"
)

// countingCatalog records catalog writes on top of a real store.
type countingCatalog struct {
	*catalog.Store

	mu          sync.Mutex
	tagCreates  int
	docCreates  int
	sourceLinks int
}

func (c *countingCatalog) CreateTag(ctx context.Context, tag catalog.Tag) (*catalog.Tag, error) {
	c.mu.Lock()
	c.tagCreates++
	c.mu.Unlock()
	return c.Store.CreateTag(ctx, tag)
}

func (c *countingCatalog) CreateDocument(ctx context.Context, title, path string, authors []string) (int64, error) {
	c.mu.Lock()
	c.docCreates++
	c.mu.Unlock()
	return c.Store.CreateDocument(ctx, title, path, authors)
}

func (c *countingCatalog) LinkDocumentSource(ctx context.Context, documentID int64, systemID int, sourceDocumentID string) error {
	c.mu.Lock()
	c.sourceLinks++
	c.mu.Unlock()
	return c.Store.LinkDocumentSource(ctx, documentID, systemID, sourceDocumentID)
}

func (c *countingCatalog) writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tagCreates + c.docCreates + c.sourceLinks
}

// percentRecorder wraps a fetcher and captures the registry percent after
// every completed fragment.
type percentRecorder struct {
	inner    acquire.Fetcher
	registry *progress.Registry
	label    string

	mu       sync.Mutex
	percents []float64
}

func (p *percentRecorder) Fetch(ctx context.Context, fragments []source.Fragment, urls map[string]string, dst io.Writer, onFragment func(source.Fragment)) error {
	return p.inner.Fetch(ctx, fragments, urls, dst, func(f source.Fragment) {
		onFragment(f)
		entry, _ := p.registry.Get(p.label)
		p.mu.Lock()
		p.percents = append(p.percents, entry.Percent)
		p.mu.Unlock()
	})
}

// blockingFetcher parks until the context is cancelled after writing a
// partial payload.
type blockingFetcher struct {
	started chan struct{}
}

func (b *blockingFetcher) Fetch(ctx context.Context, _ []source.Fragment, _ map[string]string, dst io.Writer, _ func(source.Fragment)) error {
	_, _ = dst.Write([]byte("partial"))
	close(b.started)
	<-ctx.Done()
	return services.Wrap(services.ErrFetch, "Fetching", "download", "cancelled", ctx.Err())
}

type harness struct {
	cfg      *config.Config
	server   *testsupport.SourceServer
	store    *countingCatalog
	registry *progress.Registry
	orch     *acquire.Orchestrator
	recorder *percentRecorder
}

func twoPageGallery() map[string]testsupport.Gallery {
	return map[string]testsupport.Gallery{
		"1001": {
			Title:   "Sample Work",
			Artists: []string{"artist one"},
			Tags:    []string{"x"},
			Files: []testsupport.GalleryFile{
				{Name: "01.webp", Hash: "aa00", Body: "page-one"},
				{Name: "02.webp", Hash: "bb01", Body: "page-two"},
			},
		},
	}
}

func newHarness(t *testing.T, galleries map[string]testsupport.Gallery, fetcher func(*config.Config) acquire.Fetcher) *harness {
	t.Helper()
	server := testsupport.NewSourceServer(t, galleries)
	cfg := testsupport.NewConfig(t, testsupport.WithSourceURL(server.URL))
	store := &countingCatalog{Store: testsupport.MustOpenStore(t, cfg)}
	registry := progress.NewRegistry()
	h := &harness{cfg: cfg, server: server, store: store, registry: registry}

	var f acquire.Fetcher
	if fetcher != nil {
		f = fetcher(cfg)
	} else {
		h.recorder = &percentRecorder{
			inner:    fetch.New(cfg, server.Client(), logging.NewNop()),
			registry: registry,
			label:    "Sample Work",
		}
		f = h.recorder
	}
	h.orch = acquire.New(cfg, source.NewClient(cfg, server.Client()), store, f, registry, logging.NewNop())
	t.Cleanup(h.orch.Close)
	return h
}

func definitionX() map[string]tags.Definition {
	group := 3
	return map[string]tags.Definition{"x": {GroupID: &group, Name: "translated-x"}}
}

func archiveFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read archive dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRunRejectsUnresolvedTagsWithoutSideEffects(t *testing.T) {
	h := newHarness(t, twoPageGallery(), nil)

	outcome, err := h.orch.Run(context.Background(), "1001", nil)
	if !errors.Is(err, services.ErrReconciliation) {
		t.Fatalf("expected reconciliation error, got %v", err)
	}
	var unresolved *tags.UnresolvedError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected *tags.UnresolvedError, got %T", err)
	}
	if !reflect.DeepEqual(unresolved.Aliases, []string{"x"}) {
		t.Fatalf("unexpected aliases: %v", unresolved.Aliases)
	}
	if outcome.State != acquire.StateFailed {
		t.Fatalf("expected failed outcome, got %s", outcome.State)
	}
	if got := h.server.FragmentRequests(); len(got) != 0 {
		t.Fatalf("expected no fragment fetches, got %v", got)
	}
	if h.store.writes() != 0 {
		t.Fatalf("expected no catalog writes, got %d", h.store.writes())
	}
	if _, err := os.Stat(h.orch.StagedPath("1001")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no staged file, stat err=%v", err)
	}
}

func TestRunArchivesDocument(t *testing.T) {
	h := newHarness(t, twoPageGallery(), nil)
	ctx := context.Background()

	outcome, err := h.orch.Run(ctx, "1001", definitionX())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.State != acquire.StateDone {
		t.Fatalf("expected Done, got %s", outcome.State)
	}
	if outcome.Redirect != acquire.DocumentPath(outcome.DocumentID) {
		t.Fatalf("unexpected redirect %q", outcome.Redirect)
	}

	tag, err := h.store.TagByAlias(ctx, "x")
	if err != nil || tag == nil {
		t.Fatalf("expected tag x to exist: %v", err)
	}
	if tag.GroupID != 3 || tag.Name != "translated-x" {
		t.Fatalf("unexpected tag: %+v", tag)
	}

	if got := h.recorder.percents; !reflect.DeepEqual(got, []float64{50, 100}) {
		t.Fatalf("unexpected progress sequence: %v", got)
	}
	entry, ok := h.registry.Get("Sample Work")
	if !ok || entry.State != string(acquire.StateDone) || entry.Percent != 100 {
		t.Fatalf("unexpected final progress: %+v (present=%v)", entry, ok)
	}

	if h.store.docCreates != 1 || h.store.sourceLinks != 1 {
		t.Fatalf("expected one document and one source link, got %d/%d", h.store.docCreates, h.store.sourceLinks)
	}
	docTags, err := h.store.DocumentTags(ctx, outcome.DocumentID)
	if err != nil {
		t.Fatalf("DocumentTags: %v", err)
	}
	if len(docTags) != 1 || docTags[0].Alias != "x" {
		t.Fatalf("unexpected document tags: %+v", docTags)
	}
	doc, err := h.store.Document(ctx, outcome.DocumentID)
	if err != nil || doc == nil {
		t.Fatalf("document lookup: %v", err)
	}
	if doc.Status != catalog.StatusReady {
		t.Fatalf("expected ready document, got %s", doc.Status)
	}
	if !reflect.DeepEqual(doc.Authors, []string{"artist one"}) {
		t.Fatalf("unexpected authors: %v", doc.Authors)
	}

	if _, err := os.Stat(h.orch.StagedPath("1001")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected staged file removed, stat err=%v", err)
	}
	files := archiveFiles(t, h.cfg.Paths.ArchiveDir)
	if len(files) != 1 || files[0] != outcome.Hash+".zip" {
		t.Fatalf("expected single archive named by hash %s, got %v", outcome.Hash, files)
	}
	if doc.Path != filepath.Join(h.cfg.Paths.ArchiveDir, files[0]) {
		t.Fatalf("document path %q does not match archive file", doc.Path)
	}
}

func TestRunSecondSubmissionIsAlreadyArchived(t *testing.T) {
	h := newHarness(t, twoPageGallery(), nil)
	ctx := context.Background()

	first, err := h.orch.Run(ctx, "1001", definitionX())
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	fetched := len(h.server.FragmentRequests())

	second, err := h.orch.Run(ctx, "1001", nil)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if second.State != acquire.StateAlreadyArchived {
		t.Fatalf("expected AlreadyArchived, got %s", second.State)
	}
	if second.DocumentID != first.DocumentID || second.Redirect != acquire.DocumentPath(first.DocumentID) {
		t.Fatalf("unexpected redirect outcome: %+v", second)
	}
	if got := len(h.server.FragmentRequests()); got != fetched {
		t.Fatalf("expected no additional fragment fetches, got %d more", got-fetched)
	}
	if _, ok := h.registry.Get("Sample Work"); ok {
		t.Fatal("expected progress entry removed for archived document")
	}
}

func TestRunRefusesPreexistingStagedArtifact(t *testing.T) {
	h := newHarness(t, twoPageGallery(), nil)
	staged := h.orch.StagedPath("1001")
	if err := os.WriteFile(staged, []byte("leftover"), 0o644); err != nil {
		t.Fatalf("write staged: %v", err)
	}

	_, err := h.orch.Run(context.Background(), "1001", definitionX())
	if !errors.Is(err, services.ErrPreexistingState) {
		t.Fatalf("expected preexisting state error, got %v", err)
	}
	if !services.NeedsManualIntervention(err) {
		t.Fatal("expected manual intervention marker")
	}
	entry, ok := h.registry.Get("Sample Work")
	if !ok || entry.State != progress.StateFailed || !strings.Contains(entry.Message, "manual intervention") {
		t.Fatalf("unexpected progress entry: %+v", entry)
	}
	data, err := os.ReadFile(staged)
	if err != nil || string(data) != "leftover" {
		t.Fatalf("staged file must be left untouched: %q %v", data, err)
	}
	if h.store.writes() != 0 || len(h.server.FragmentRequests()) != 0 {
		t.Fatal("expected no writes and no fetches")
	}
}

func TestRunMissingFragmentCleansStaging(t *testing.T) {
	galleries := twoPageGallery()
	g := galleries["1001"]
	g.Files[1].Status = 404
	galleries["1001"] = g
	h := newHarness(t, galleries, nil)

	_, err := h.orch.Run(context.Background(), "1001", definitionX())
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	var unavailable *fetch.UnavailableError
	if !errors.As(err, &unavailable) || unavailable.Fragment != "02.webp" {
		t.Fatalf("expected unavailable fragment 02.webp, got %v", err)
	}
	if _, err := os.Stat(h.orch.StagedPath("1001")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected staged file removed, stat err=%v", err)
	}
	if files := archiveFiles(t, h.cfg.Paths.ArchiveDir); len(files) != 0 {
		t.Fatalf("expected empty archive, got %v", files)
	}
	if h.store.docCreates != 0 {
		t.Fatal("expected no document registration")
	}
	entry, _ := h.registry.Get("Sample Work")
	if entry.State != progress.StateFailed {
		t.Fatalf("expected failed entry, got %+v", entry)
	}
}

func TestRunDuplicateContentKeepsStagedFile(t *testing.T) {
	galleries := twoPageGallery()
	galleries["1002"] = testsupport.Gallery{
		Title: "Same Pages",
		Tags:  []string{"x"},
		Files: galleries["1001"].Files,
	}
	h := newHarness(t, galleries, nil)
	ctx := context.Background()

	if _, err := h.orch.Run(ctx, "1001", definitionX()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	_, err := h.orch.Run(ctx, "1002", nil)
	if !errors.Is(err, services.ErrDuplicateArtifact) {
		t.Fatalf("expected duplicate artifact error, got %v", err)
	}
	if _, err := os.Stat(h.orch.StagedPath("1002")); err != nil {
		t.Fatalf("expected staged duplicate kept: %v", err)
	}
	if h.store.docCreates != 1 {
		t.Fatalf("expected duplicate to skip registration, got %d documents", h.store.docCreates)
	}
}

func TestSubmitRunsInBackground(t *testing.T) {
	h := newHarness(t, twoPageGallery(), nil)

	outcome, err := h.orch.Submit(context.Background(), "1001", definitionX())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if outcome.State != acquire.StateAccepted || outcome.Redirect != "/api/status/Sample%20Work" {
		t.Fatalf("unexpected submit outcome: %+v", outcome)
	}
	h.orch.Wait()

	entry, ok := h.registry.Get("Sample Work")
	if !ok || entry.State != string(acquire.StateDone) {
		t.Fatalf("expected Done entry, got %+v", entry)
	}
	doc, err := h.store.DocumentBySource(context.Background(), h.cfg.Source.SystemID, "1001")
	if err != nil || doc == nil {
		t.Fatalf("expected document linked to source: %v", err)
	}
}

func TestSubmitReportsUnresolvedTagsSynchronously(t *testing.T) {
	h := newHarness(t, twoPageGallery(), nil)
	_, err := h.orch.Submit(context.Background(), "1001", nil)
	if !errors.Is(err, services.ErrReconciliation) {
		t.Fatalf("expected reconciliation error, got %v", err)
	}
	if _, ok := h.registry.Get("Sample Work"); ok {
		t.Fatal("unexpected progress entry for rejected job")
	}
}

func TestCloseCancelsFetchAndCleansStaging(t *testing.T) {
	blocker := &blockingFetcher{started: make(chan struct{})}
	h := newHarness(t, twoPageGallery(), func(*config.Config) acquire.Fetcher { return blocker })

	if _, err := h.orch.Submit(context.Background(), "1001", definitionX()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-blocker.started
	h.orch.Close()

	if _, err := os.Stat(h.orch.StagedPath("1001")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected staged file removed after cancel, stat err=%v", err)
	}
	entry, _ := h.registry.Get("Sample Work")
	if entry.State != progress.StateFailed {
		t.Fatalf("expected failed entry after cancel, got %+v", entry)
	}
	if _, err := h.orch.Submit(context.Background(), "1001", definitionX()); !errors.Is(err, acquire.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if h.store.docCreates != 0 {
		t.Fatal("cancelled job must not register a document")
	}
}

func TestMissingTagsAndDownloadURLs(t *testing.T) {
	galleries := twoPageGallery()
	g := galleries["1001"]
	g.Characters = []string{"hero"}
	galleries["1001"] = g
	h := newHarness(t, galleries, nil)
	ctx := context.Background()

	missing, err := h.orch.MissingTags(ctx, "1001")
	if err != nil {
		t.Fatalf("MissingTags: %v", err)
	}
	if len(missing) != 2 || missing[0].Alias != "hero" || missing[0].GroupID == nil || *missing[0].GroupID != source.GroupCharacter {
		t.Fatalf("unexpected missing tags: %+v", missing)
	}
	if missing[1].Alias != "x" || missing[1].GroupID != nil {
		t.Fatalf("unexpected generic missing tag: %+v", missing[1])
	}

	urls, err := h.orch.DownloadURLs(ctx, "1001")
	if err != nil {
		t.Fatalf("DownloadURLs: %v", err)
	}
	want := h.server.URL + "/img/v1/aa00.webp"
	if urls["01.webp"] != want {
		t.Fatalf("unexpected url for 01.webp: %q want %q", urls["01.webp"], want)
	}
}

func TestRunRejectsPathLikeIdentifiers(t *testing.T) {
	h := newHarness(t, twoPageGallery(), nil)
	for _, id := range []string{"", "..", "../1001", "a/b"} {
		if _, err := h.orch.Run(context.Background(), id, nil); !errors.Is(err, services.ErrResolution) {
			t.Fatalf("id %q: expected resolution error, got %v", id, err)
		}
	}
	if h.server.Resolves() != 0 {
		t.Fatal("invalid identifiers must not reach the resolver")
	}
}

// racingResolver writes a competing job's staged file once the gates have
// passed, the window in which a concurrent first-time submission can win.
type racingResolver struct {
	source.Resolver
	stagedPath string
}

func (r *racingResolver) FragmentURLs(ctx context.Context, fragments []source.Fragment) (map[string]string, error) {
	if err := os.WriteFile(r.stagedPath, []byte("other job"), 0o644); err != nil {
		return nil, err
	}
	return r.Resolver.FragmentURLs(ctx, fragments)
}

func TestRunLeavesConcurrentJobsStagedArtifact(t *testing.T) {
	server := testsupport.NewSourceServer(t, twoPageGallery())
	cfg := testsupport.NewConfig(t, testsupport.WithSourceURL(server.URL))
	store := &countingCatalog{Store: testsupport.MustOpenStore(t, cfg)}
	registry := progress.NewRegistry()
	stagedPath := filepath.Join(cfg.Paths.StagingDir, "1001.zip")
	resolver := &racingResolver{Resolver: source.NewClient(cfg, server.Client()), stagedPath: stagedPath}
	orch := acquire.New(cfg, resolver, store, fetch.New(cfg, server.Client(), logging.NewNop()), registry, logging.NewNop())
	t.Cleanup(orch.Close)

	_, err := orch.Run(context.Background(), "1001", definitionX())
	if !errors.Is(err, services.ErrPreexistingState) {
		t.Fatalf("expected preexisting state error, got %v", err)
	}
	data, readErr := os.ReadFile(stagedPath)
	if readErr != nil {
		t.Fatalf("staged artifact of the other job was removed: %v", readErr)
	}
	if string(data) != "other job" {
		t.Fatalf("staged artifact was modified: %q", data)
	}
	if got := server.FragmentRequests(); len(got) != 0 {
		t.Fatalf("expected no fragment fetches, got %v", got)
	}
	entry, ok := registry.Get("Sample Work")
	if !ok || entry.State != progress.StateFailed {
		t.Fatalf("expected failed status entry, got %+v ok=%v", entry, ok)
	}
	if store.docCreates != 0 {
		t.Fatalf("expected no document writes, got %d", store.docCreates)
	}
}

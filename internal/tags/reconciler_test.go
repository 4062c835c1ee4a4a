package tags_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"tankobon/internal/catalog"
	"tankobon/internal/services"
	"tankobon/internal/source"
	"tankobon/internal/tags"
	"tankobon/internal/testsupport"
)

// countingCatalog wraps the real store and counts writes.
type countingCatalog struct {
	*catalog.Store
	lookups int
	creates int
}

func (c *countingCatalog) TagByAlias(ctx context.Context, alias string) (*catalog.Tag, error) {
	c.lookups++
	return c.Store.TagByAlias(ctx, alias)
}

func (c *countingCatalog) CreateTag(ctx context.Context, tag catalog.Tag) (*catalog.Tag, error) {
	c.creates++
	return c.Store.CreateTag(ctx, tag)
}

func newCatalog(t *testing.T) *countingCatalog {
	t.Helper()
	return &countingCatalog{Store: testsupport.MustOpenStore(t, testsupport.NewConfig(t))}
}

func intPtr(v int) *int { return &v }

func TestReconcileDeduplicatesAcrossKinds(t *testing.T) {
	store := newCatalog(t)
	ctx := context.Background()
	for _, alias := range []string{"world", "hero"} {
		if _, err := store.Store.CreateTag(ctx, catalog.Tag{Name: alias, GroupID: 3, Alias: alias}); err != nil {
			t.Fatalf("seed tag: %v", err)
		}
	}

	raw := []source.RawTag{
		source.NewRawTag(source.TagSetting, "world"),
		source.NewRawTag(source.TagCharacter, "hero"),
		source.NewRawTag(source.TagGeneric, "hero"),
		source.NewRawTag(source.TagGeneric, "world"),
	}
	got, err := tags.NewReconciler(store).Reconcile(ctx, raw, nil)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(got) != 2 || got[0].Alias != "world" || got[1].Alias != "hero" {
		t.Fatalf("expected two tags in first-appearance order, got %+v", got)
	}
	if store.lookups != 2 {
		t.Fatalf("expected one lookup per unique alias, got %d", store.lookups)
	}
	if store.creates != 0 {
		t.Fatalf("expected no creates, got %d", store.creates)
	}
}

func TestReconcileReportsEveryUnresolvedAliasWithoutWriting(t *testing.T) {
	store := newCatalog(t)
	raw := []source.RawTag{
		source.NewRawTag(source.TagGeneric, "a"),
		source.NewRawTag(source.TagGeneric, "b"),
		source.NewRawTag(source.TagCharacter, "c"),
		source.NewRawTag(source.TagGeneric, "d"),
	}
	defs := map[string]tags.Definition{
		"b": {GroupID: intPtr(3), Name: "B"},
		"d": {Name: "D"},
	}

	_, err := tags.NewReconciler(store).Reconcile(context.Background(), raw, defs)
	var unresolved *tags.UnresolvedError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedError, got %v", err)
	}
	if !errors.Is(err, services.ErrReconciliation) {
		t.Fatal("expected reconciliation marker")
	}
	if !reflect.DeepEqual(unresolved.Aliases, []string{"a", "c", "d"}) {
		t.Fatalf("unexpected unresolved aliases: %v", unresolved.Aliases)
	}
	if store.creates != 0 {
		t.Fatalf("expected zero catalog writes, got %d", store.creates)
	}
	if tag, _ := store.Store.TagByAlias(context.Background(), "b"); tag != nil {
		t.Fatal("defined tag must not be created when the set is incomplete")
	}
}

func TestReconcileCreatesDefinedTags(t *testing.T) {
	store := newCatalog(t)
	raw := []source.RawTag{
		source.NewRawTag(source.TagGeneric, "x"),
		source.NewRawTag(source.TagCharacter, "hero"),
	}
	defs := map[string]tags.Definition{
		"x":    {GroupID: intPtr(3), Name: "translated-x"},
		"hero": {GroupID: intPtr(4), Name: "Hero"},
	}

	got, err := tags.NewReconciler(store).Reconcile(context.Background(), raw, defs)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(got))
	}
	if got[0].GroupID != 3 || got[0].Name != "translated-x" {
		t.Fatalf("unexpected generic tag: %+v", got[0])
	}
	if got[1].GroupID != source.GroupCharacter {
		t.Fatalf("character kind group must win over definition, got %+v", got[1])
	}

	again, err := tags.NewReconciler(store).Reconcile(context.Background(), raw, nil)
	if err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}
	if again[0].ID != got[0].ID || again[1].ID != got[1].ID {
		t.Fatalf("expected stable ids, got %+v then %+v", got, again)
	}
}

func TestMissingReportsDefaultGroups(t *testing.T) {
	store := newCatalog(t)
	if _, err := store.Store.CreateTag(context.Background(), catalog.Tag{Name: "known", GroupID: 3, Alias: "known"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	raw := []source.RawTag{
		source.NewRawTag(source.TagGeneric, "known"),
		source.NewRawTag(source.TagSetting, "world"),
		source.NewRawTag(source.TagGeneric, "x"),
		source.NewRawTag(source.TagGeneric, "x"),
	}

	missing, err := tags.NewReconciler(store).Missing(context.Background(), raw)
	if err != nil {
		t.Fatalf("Missing failed: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing tags, got %+v", missing)
	}
	if missing[0].Alias != "world" || missing[0].GroupID == nil || *missing[0].GroupID != source.GroupSetting {
		t.Fatalf("unexpected first missing tag: %+v", missing[0])
	}
	if missing[1].Alias != "x" || missing[1].GroupID != nil {
		t.Fatalf("unexpected second missing tag: %+v", missing[1])
	}
}

// brokenCatalog fails every lookup the way a closed or corrupt database does.
type brokenCatalog struct {
	*countingCatalog
}

func (b *brokenCatalog) TagByAlias(context.Context, string) (*catalog.Tag, error) {
	return nil, errors.New("disk I/O error")
}

func TestLookupFailuresAreCatalogErrors(t *testing.T) {
	cat := &brokenCatalog{countingCatalog: newCatalog(t)}
	r := tags.NewReconciler(cat)
	raw := []source.RawTag{source.NewRawTag(source.TagGeneric, "x")}

	_, err := r.Reconcile(context.Background(), raw, map[string]tags.Definition{"x": {GroupID: intPtr(3), Name: "x"}})
	if !errors.Is(err, services.ErrCatalogRead) {
		t.Fatalf("expected catalog read error, got %v", err)
	}
	if errors.Is(err, services.ErrReconciliation) {
		t.Fatalf("lookup failure must not read as a reconciliation error: %v", err)
	}
	var unresolved *tags.UnresolvedError
	if errors.As(err, &unresolved) {
		t.Fatalf("unexpected unresolved error: %v", unresolved)
	}
	if cat.creates != 0 {
		t.Fatalf("expected no creates, got %d", cat.creates)
	}

	if _, err := r.Missing(context.Background(), raw); !errors.Is(err, services.ErrCatalogRead) {
		t.Fatalf("expected catalog read error from Missing, got %v", err)
	}
}

// flakyCreateCatalog fails the first CreateTag for one alias.
type flakyCreateCatalog struct {
	*countingCatalog
	failAlias string
	failed    bool
}

func (f *flakyCreateCatalog) CreateTag(ctx context.Context, tag catalog.Tag) (*catalog.Tag, error) {
	if tag.Alias == f.failAlias && !f.failed {
		f.failed = true
		return nil, errors.New("database is locked")
	}
	return f.countingCatalog.CreateTag(ctx, tag)
}

func TestReconcileRetryAfterPartialCreate(t *testing.T) {
	ctx := context.Background()
	cat := &flakyCreateCatalog{countingCatalog: newCatalog(t), failAlias: "b"}
	r := tags.NewReconciler(cat)
	raw := []source.RawTag{
		source.NewRawTag(source.TagGeneric, "a"),
		source.NewRawTag(source.TagGeneric, "b"),
		source.NewRawTag(source.TagGeneric, "c"),
	}
	defs := map[string]tags.Definition{
		"a": {GroupID: intPtr(3), Name: "A"},
		"b": {GroupID: intPtr(3), Name: "B"},
		"c": {GroupID: intPtr(3), Name: "C"},
	}

	if _, err := r.Reconcile(ctx, raw, defs); !errors.Is(err, services.ErrCatalogWrite) {
		t.Fatalf("expected catalog write error, got %v", err)
	}
	kept, err := cat.Store.TagByAlias(ctx, "a")
	if err != nil || kept == nil {
		t.Fatalf("expected tag created before the failure to remain, got %v, %v", kept, err)
	}
	if later, _ := cat.Store.TagByAlias(ctx, "c"); later != nil {
		t.Fatalf("expected no tag after the failure, got %+v", later)
	}

	got, err := r.Reconcile(ctx, raw, defs)
	if err != nil {
		t.Fatalf("retry Reconcile failed: %v", err)
	}
	if len(got) != 3 || got[0].ID != kept.ID || got[0].Name != "A" {
		t.Fatalf("expected retry to reuse the surviving tag, got %+v", got)
	}
	if got[1].Alias != "b" || got[2].Alias != "c" {
		t.Fatalf("unexpected retry order: %+v", got)
	}
}

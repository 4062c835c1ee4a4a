package staging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tankobon/internal/logging"
)

func writeArtifact(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("zip"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if age > 0 {
		stamp := time.Now().Add(-age)
		if err := os.Chtimes(path, stamp, stamp); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}
	return path
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldArtifacts(t *testing.T) {
	tmpDir := t.TempDir()
	oldPath := writeArtifact(t, tmpDir, "1001.zip", 2*time.Hour)
	recentPath := writeArtifact(t, tmpDir, "1002.zip", 0)

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != oldPath {
		t.Fatalf("expected only %s removed, got %v", oldPath, result.Removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("old artifact should have been removed")
	}
	if _, err := os.Stat(recentPath); err != nil {
		t.Error("recent artifact should still exist")
	}
}

func TestCleanStaleIgnoresOtherEntries(t *testing.T) {
	tmpDir := t.TempDir()
	writeArtifact(t, tmpDir, "notes.txt", 2*time.Hour)
	if err := os.Mkdir(filepath.Join(tmpDir, "old.zip"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())
	if len(result.Removed) != 0 {
		t.Fatalf("expected no removals, got %v", result.Removed)
	}
}

func TestCleanArchivedRemovesCataloguedSources(t *testing.T) {
	tmpDir := t.TempDir()
	archivedPath := writeArtifact(t, tmpDir, "1001.zip", 0)
	pendingPath := writeArtifact(t, tmpDir, "1002.zip", 0)

	archived := func(_ context.Context, id string) (bool, error) {
		return id == "1001", nil
	}
	result := CleanArchived(context.Background(), tmpDir, archived, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != archivedPath {
		t.Fatalf("unexpected removals: %v", result.Removed)
	}
	if _, err := os.Stat(pendingPath); err != nil {
		t.Fatalf("uncatalogued artifact should remain: %v", err)
	}
}

func TestCleanArchivedRecordsLookupErrors(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeArtifact(t, tmpDir, "1001.zip", 0)

	lookupErr := errors.New("catalog offline")
	result := CleanArchived(context.Background(), tmpDir, func(context.Context, string) (bool, error) {
		return false, lookupErr
	}, nil)

	if len(result.Errors) != 1 || !errors.Is(result.Errors[0].Error, lookupErr) {
		t.Fatalf("expected lookup error recorded, got %+v", result.Errors)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("artifact must survive a failed lookup: %v", err)
	}
}

func TestListArtifactsOrdersByAge(t *testing.T) {
	tmpDir := t.TempDir()
	writeArtifact(t, tmpDir, "new.zip", time.Minute)
	writeArtifact(t, tmpDir, "old.zip", time.Hour)
	writeArtifact(t, tmpDir, "ignored.part", time.Hour)

	artifacts, err := ListArtifacts(tmpDir)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(artifacts))
	}
	if artifacts[0].SourceID != "old" || artifacts[1].SourceID != "new" {
		t.Fatalf("unexpected order: %s, %s", artifacts[0].SourceID, artifacts[1].SourceID)
	}
	if artifacts[0].Size != 3 {
		t.Fatalf("unexpected size: %d", artifacts[0].Size)
	}
}

func TestListArtifactsMissingDir(t *testing.T) {
	artifacts, err := ListArtifacts(filepath.Join(t.TempDir(), "missing"))
	if err != nil || artifacts != nil {
		t.Fatalf("expected nil result for missing dir, got %v %v", artifacts, err)
	}
}

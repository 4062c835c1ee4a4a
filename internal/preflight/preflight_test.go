package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"tankobon/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckSameFilesystem(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "a")
	b := filepath.Join(base, "b")
	for _, dir := range []string{a, b} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	result := CheckSameFilesystem(a, b)
	if !result.Passed || !result.Advisory {
		t.Fatalf("expected advisory pass for sibling dirs, got %+v", result)
	}

	missing := CheckSameFilesystem(filepath.Join(base, "missing"), b)
	if missing.Passed {
		t.Fatal("expected failure for missing dir")
	}
}

func TestCheckSource_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/routing.json" || r.Header.Get("User-Agent") != "tankobon-test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckSource(context.Background(), srv.Client(), srv.URL+"/", "tankobon-test")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckSource_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := CheckSource(context.Background(), srv.Client(), srv.URL, "")
	if result.Passed {
		t.Fatal("expected failure for 502")
	}
}

func TestCheckSource_MissingURL(t *testing.T) {
	result := CheckSource(context.Background(), nil, "", "")
	if result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_DirectoriesOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	results := RunAll(context.Background(), cfg, nil)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if blocking := Blocking(results); len(blocking) != 0 {
		t.Fatalf("unexpected blocking failures: %+v", blocking)
	}
}

func TestRunAll_UnreachableSourceIsAdvisory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	cfg := testsupport.NewConfig(t, testsupport.WithSourceURL(srv.URL))

	results := RunAll(context.Background(), cfg, srv.Client())
	var found bool
	for _, r := range results {
		if r.Name == "Source" {
			found = true
			if r.Passed || !r.Advisory {
				t.Fatalf("expected advisory failure, got %+v", r)
			}
		}
	}
	if !found {
		t.Fatal("expected source check in results")
	}
	if blocking := Blocking(results); len(blocking) != 0 {
		t.Fatalf("source failure must not block: %+v", blocking)
	}
}

func TestBlockingReportsMissingArchive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.RemoveAll(cfg.Paths.ArchiveDir); err != nil {
		t.Fatal(err)
	}
	blocking := Blocking(RunAll(context.Background(), cfg, nil))
	if len(blocking) != 1 || blocking[0].Name != "Archive directory" {
		t.Fatalf("expected archive directory failure, got %+v", blocking)
	}
}

package daemon_test

import (
	"context"
	"net/http"
	"testing"

	"tankobon/internal/daemon"
	"tankobon/internal/logging"
	"tankobon/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	src := testsupport.NewSourceServer(t, nil)
	cfg := testsupport.NewConfig(t, testsupport.WithSourceURL(src.URL))
	store := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, store, logging.NewNop(), src.Client())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.RoutingVersion != "v1" {
		t.Fatalf("expected routing loaded at start, got %q", status.RoutingVersion)
	}

	resp, err := http.Get("http://" + status.APIAddress + "/api/status")
	if err != nil {
		t.Fatalf("api request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected api to serve, got %d", resp.StatusCode)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	src := testsupport.NewSourceServer(t, nil)
	cfg := testsupport.NewConfig(t, testsupport.WithSourceURL(src.URL))

	first, err := daemon.New(cfg, testsupport.MustOpenStore(t, cfg), logging.NewNop(), src.Client())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	t.Cleanup(first.Stop)

	secondCfg := *cfg
	secondCfg.Paths.APIBind = "127.0.0.1:0"
	second, err := daemon.New(&secondCfg, testsupport.MustOpenStore(t, cfg), logging.NewNop(), src.Client())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected lock contention to fail the second start")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := daemon.New(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

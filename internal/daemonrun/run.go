package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"tankobon/internal/catalog"
	"tankobon/internal/config"
	"tankobon/internal/daemon"
	"tankobon/internal/logging"
	"tankobon/internal/preflight"
	"tankobon/internal/staging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	// SkipPreflight disables the startup checks.
	SkipPreflight bool
}

// Run starts the tankobond runtime loop and blocks until ctx is cancelled or
// the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logCfg := *cfg
	if strings.TrimSpace(opts.LogLevel) != "" {
		logCfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(&logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	client := &http.Client{}
	if !opts.SkipPreflight {
		if err := runPreflight(signalCtx, cfg, logger, client); err != nil {
			return err
		}
	}
	logStagingSnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "tankobond.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := catalog.Open(cfg)
	if err != nil {
		logger.Error("open catalog", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, logger, client)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api_bind and that no other tankobond holds the lock"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("tankobond shutting down")
	return nil
}

func runPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger, client *http.Client) error {
	results := preflight.RunAll(ctx, cfg, client)
	for _, r := range results {
		switch {
		case r.Passed:
			logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
		case r.Advisory:
			logging.WarnWithContext(logger, "preflight check failed", "preflight_advisory",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
		default:
			logging.ErrorWithContext(logger, "preflight check failed", "preflight_blocking",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
		}
	}
	if blocking := preflight.Blocking(results); len(blocking) > 0 {
		names := make([]string, 0, len(blocking))
		for _, r := range blocking {
			names = append(names, r.Name)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
	}
	return nil
}

// logStagingSnapshot reports staged artifacts left by earlier runs. Each one
// blocks its source until an operator deals with it.
func logStagingSnapshot(logger *slog.Logger, cfg *config.Config) {
	artifacts, err := staging.ListArtifacts(cfg.Paths.StagingDir)
	if err != nil {
		logger.Warn("list staged artifacts failed", logging.Error(err))
		return
	}
	if len(artifacts) == 0 {
		return
	}
	ids := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		ids = append(ids, a.SourceID)
	}
	logging.WarnWithContext(logger, "staged artifacts from earlier runs", "staging_leftovers",
		logging.Int("count", len(artifacts)),
		logging.String("source_ids", strings.Join(ids, ",")),
		logging.String(logging.FieldErrorHint, "inspect with 'tankobon staging' and clean with 'tankobon staging clean'"),
	)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

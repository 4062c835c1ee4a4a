package preflight

import (
	"context"
	"net/http"

	"tankobon/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Advisory results are reported but never block startup.
	Advisory bool
}

// RunAll executes every preflight check for the given config. The source
// check is skipped when client is nil.
func RunAll(ctx context.Context, cfg *config.Config, client *http.Client) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Archive directory", cfg.Paths.ArchiveDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckSameFilesystem(cfg.Paths.StagingDir, cfg.Paths.ArchiveDir),
	}

	if client != nil {
		source := CheckSource(ctx, client, cfg.Source.BaseURL, cfg.Source.UserAgent)
		// The resolver retries on demand, so an unreachable source only warns.
		source.Advisory = true
		results = append(results, source)
	}
	return results
}

// Blocking returns the failed results that must stop startup.
func Blocking(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Advisory {
			out = append(out, r)
		}
	}
	return out
}

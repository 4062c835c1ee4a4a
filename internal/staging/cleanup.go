package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tankobon/internal/logging"
)

// artifactExt is the extension of staged containers.
const artifactExt = ".zip"

// CleanResult contains the outcome of a staging cleanup operation.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs an artifact path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Artifact describes a staged container left in the staging directory.
type Artifact struct {
	SourceID string    `json:"source_id"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	ModTime  time.Time `json:"mod_time"`
	Size     int64     `json:"size_bytes"`
}

// ArchivedFunc reports whether a source document is already catalogued.
type ArchivedFunc func(ctx context.Context, sourceID string) (bool, error)

// ListArtifacts returns every staged container, oldest first.
func ListArtifacts(stagingDir string) ([]Artifact, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var artifacts []Artifact
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), artifactExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			SourceID: strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Name:     entry.Name(),
			Path:     filepath.Join(stagingDir, entry.Name()),
			ModTime:  info.ModTime(),
			Size:     info.Size(),
		})
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ModTime.Before(artifacts[j].ModTime)
	})
	return artifacts, nil
}

// CleanStale removes staged containers older than maxAge.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	cutoff := time.Now().Add(-maxAge)
	return clean(ctx, stagingDir, logger, "stale", func(_ context.Context, a Artifact) (bool, error) {
		return a.ModTime.Before(cutoff), nil
	})
}

// CleanArchived removes staged containers whose source document is already
// catalogued, typically duplicates or artifacts resolved by hand.
func CleanArchived(ctx context.Context, stagingDir string, archived ArchivedFunc, logger *slog.Logger) CleanResult {
	return clean(ctx, stagingDir, logger, "archived", func(ctx context.Context, a Artifact) (bool, error) {
		return archived(ctx, a.SourceID)
	})
}

func clean(ctx context.Context, stagingDir string, logger *slog.Logger, reason string, match func(context.Context, Artifact) (bool, error)) CleanResult {
	result := CleanResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	artifacts, err := ListArtifacts(stagingDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		return result
	}

	for _, artifact := range artifacts {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, CleanupError{Path: artifact.Path, Error: ctx.Err()})
			return result
		}
		remove, err := match(ctx, artifact)
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: artifact.Path, Error: err})
			continue
		}
		if !remove {
			continue
		}
		if err := os.Remove(artifact.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: artifact.Path, Error: err})
			logging.WarnWithContext(logger, "failed to remove staged artifact", "staging_cleanup_failed",
				logging.String("path", artifact.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
			)
			continue
		}
		result.Removed = append(result.Removed, artifact.Path)
		logger.Info("removed staged artifact",
			logging.String("path", artifact.Path),
			logging.String("reason", reason),
			logging.Duration("age", time.Since(artifact.ModTime)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}

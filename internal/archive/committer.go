package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"tankobon/internal/catalog"
	"tankobon/internal/fileutil"
	"tankobon/internal/logging"
	"tankobon/internal/services"
)

const stage = "Committing"

// Catalog is the subset of the catalog the committer writes to.
type Catalog interface {
	CreateDocument(ctx context.Context, title, path string, authors []string) (int64, error)
	LinkDocumentTag(ctx context.Context, documentID, tagID int64) error
	LinkDocumentSource(ctx context.Context, documentID int64, systemID int, sourceDocumentID string) error
	MarkDocumentReady(ctx context.Context, id int64) error
}

// Metadata is everything registered alongside an artifact.
type Metadata struct {
	Title            string
	Authors          []string
	Tags             []catalog.Tag
	SourceSystemID   int
	SourceDocumentID string
}

// Result describes a completed commit.
type Result struct {
	DocumentID int64
	Hash       string
	Path       string
	Size       int64
}

// DuplicateError reports that the archive already holds an artifact with the
// same content hash.
type DuplicateError struct {
	Hash string
	Path string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s already archived at %s", services.ErrDuplicateArtifact, e.Hash, e.Path)
}

// Is lets errors.Is match the duplicate marker.
func (e *DuplicateError) Is(target error) bool {
	return target == services.ErrDuplicateArtifact
}

// Committer moves staged artifacts into the archive.
type Committer struct {
	archiveDir string
	catalog    Catalog
	logger     *slog.Logger

	// MoveFunc relocates the staged file. It must not replace an existing
	// target. Defaults to fileutil.MoveNoReplace.
	MoveFunc func(src, dst string) error
}

// NewCommitter constructs a committer writing into archiveDir.
func NewCommitter(archiveDir string, c Catalog, logger *slog.Logger) *Committer {
	return &Committer{
		archiveDir: archiveDir,
		catalog:    c,
		logger:     logging.NewComponentLogger(logger, "archive"),
		MoveFunc:   fileutil.MoveNoReplace,
	}
}

// TargetPath returns the archive location for a content hash.
func (c *Committer) TargetPath(hash string) string {
	return filepath.Join(c.archiveDir, hash+".zip")
}

// Commit archives the staged artifact at stagedPath.
//
// A duplicate hash returns *DuplicateError, keeps the staged file and touches
// nothing in the catalog. A failed document registration deletes the staged
// file. Any later failure keeps the staged file (unless it was already moved)
// and returns an error marked as requiring manual intervention.
func (c *Committer) Commit(ctx context.Context, stagedPath string, meta Metadata) (*Result, error) {
	logger := logging.WithContext(ctx, c.logger)

	hash, size, err := fileutil.HashFile(stagedPath)
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, stage, "hash", stagedPath, err)
	}
	target := c.TargetPath(hash)
	result := &Result{Hash: hash, Path: target, Size: size}

	if _, err := os.Stat(target); err == nil {
		logging.WarnWithContext(logger, "artifact already archived", "duplicate_artifact",
			logging.String("hash", hash),
			logging.String("staged_path", stagedPath),
			logging.String(logging.FieldErrorHint, "compare the staged file with the archived one and remove whichever is wrong"),
		)
		return nil, &DuplicateError{Hash: hash, Path: target}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, services.Wrap(services.ErrFetch, stage, "stat target", target, err)
	}

	id, err := c.catalog.CreateDocument(ctx, meta.Title, target, meta.Authors)
	if err == nil && id <= 0 {
		err = fmt.Errorf("invalid document id %d", id)
	}
	if err != nil {
		if rmErr := os.Remove(stagedPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warn("remove staged artifact failed", logging.String("path", stagedPath), logging.Error(rmErr))
		}
		return nil, services.Wrap(services.ErrCatalogWrite, stage, "register document", meta.Title, err)
	}
	result.DocumentID = id
	logger = logger.With(logging.Int64("document_id", id))

	for _, tag := range meta.Tags {
		if err := c.catalog.LinkDocumentTag(ctx, id, tag.ID); err != nil {
			return result, c.manual(logger, "link tag", tag.Alias, err)
		}
	}

	if err := c.catalog.LinkDocumentSource(ctx, id, meta.SourceSystemID, meta.SourceDocumentID); err != nil {
		return result, c.manual(logger, "link source", meta.SourceDocumentID, err)
	}

	if err := c.MoveFunc(stagedPath, target); err != nil {
		if errors.Is(err, fileutil.ErrTargetExists) {
			return result, services.RequireManual(&DuplicateError{Hash: hash, Path: target})
		}
		return result, c.manual(logger, "move artifact", target, err)
	}

	if err := c.catalog.MarkDocumentReady(ctx, id); err != nil {
		return result, c.manual(logger, "mark ready", target, err)
	}

	logger.Info("artifact archived",
		logging.String("hash", hash),
		logging.String("path", target),
		logging.Int64("bytes", size),
	)
	return result, nil
}

func (c *Committer) manual(logger *slog.Logger, op, subject string, err error) error {
	wrapped := services.RequireManual(services.Wrap(services.ErrCatalogWrite, stage, op, subject, err))
	logging.ErrorWithContext(logger, "commit left a pending document", "commit_inconsistent",
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "reconcile the pending document listed by 'tankobon orphans'"),
	)
	return wrapped
}

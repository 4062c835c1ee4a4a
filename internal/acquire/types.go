package acquire

import (
	"context"
	"io"

	"tankobon/internal/archive"
	"tankobon/internal/catalog"
	"tankobon/internal/source"
	"tankobon/internal/tags"
)

// State names a job phase or outcome.
type State string

const (
	StateResolving       State = "Resolving"
	StateReconcilingTags State = "ReconcilingTags"
	StateFetching        State = "Fetching"
	StateCommitting      State = "Committing"
	StateDone            State = "Done"
	StateFailed          State = "Failed"

	// StateAccepted is returned by Submit once the background job starts.
	StateAccepted State = "Accepted"
	// StateAlreadyArchived means the source record is already catalogued.
	StateAlreadyArchived State = "AlreadyArchived"
)

// Outcome is the caller-facing result of a job.
type Outcome struct {
	State      State
	Label      string
	DocumentID int64
	Redirect   string
	Hash       string
}

// Catalog is everything the orchestrator needs from the catalog.
type Catalog interface {
	tags.Catalog
	archive.Catalog
	DocumentBySource(ctx context.Context, systemID int, sourceDocumentID string) (*catalog.Document, error)
}

// Fetcher downloads fragments into a single container.
type Fetcher interface {
	Fetch(ctx context.Context, fragments []source.Fragment, urls map[string]string, dst io.Writer, onFragment func(source.Fragment)) error
}

// job is a resolved, gated and reconciled acquisition ready to fetch.
type job struct {
	sourceID   string
	record     *source.Record
	label      string
	tags       []catalog.Tag
	urls       map[string]string
	stagedPath string
	// requestID correlates background work with the submitting request.
	requestID  string
}

package catalog

import (
	"errors"
	"time"
)

// DocumentStatus tracks whether a document's archived file is in place.
type DocumentStatus string

const (
	// StatusPending marks a document registered before its file was moved
	// into the archive.
	StatusPending DocumentStatus = "pending"
	// StatusReady marks a document whose archived file exists.
	StatusReady DocumentStatus = "ready"
)

// ErrSourceLinked is returned when a source record is already linked to a
// document.
var ErrSourceLinked = errors.New("source already linked")

// Tag is a catalog tag. Alias is the source-native identifier and is unique.
type Tag struct {
	ID      int64
	Name    string
	GroupID int
	Alias   string
}

// TagGroup is a taxonomy category.
type TagGroup struct {
	ID   int
	Name string
}

// Document is a catalogued archive.
type Document struct {
	ID        int64
	Title     string
	Path      string
	Authors   []string
	Status    DocumentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SourceLink records which source record a document came from.
type SourceLink struct {
	DocumentID       int64
	SourceSystemID   int
	SourceDocumentID string
}

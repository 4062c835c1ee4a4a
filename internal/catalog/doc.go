// Package catalog is the reference SQLite catalog of documents, tags and
// source links.
//
// The Store owns connection setup, schema initialization and busy retries.
// Tags are keyed by their source-native alias and created with get-or-create
// semantics. Documents start in the pending state and are marked ready once
// their archived file is in place, so a pending document that outlives its
// job is the detectable trace of an interrupted commit.
//
// Schema changes bump schemaVersion in schema.go; existing databases with a
// different version are refused rather than migrated.
package catalog

// Package api defines wire-format types and converters for the tankobond HTTP
// API, plus a typed client the CLI uses to talk to a running daemon.
//
// # Key Types
//
// AddRequest/AddResponse: acquisition submission. Tag definitions travel as
// two-element arrays [group_id|null, name] keyed by alias.
//
// Document/DocumentDetail: catalogued documents with authors and tags.
//
// StatusResponse: the task status registry keyed by job label.
//
// # Converters
//
// FromDocument, FromTag, FromTagGroup, FromRecord and FromMissing translate
// catalog, source and reconciler models. Definitions turns request tag
// definitions into reconciler input.
//
// # Design Notes
//
// DTOs use snake_case JSON tags so existing clients of the acquisition API
// keep working. Timestamps use RFC3339 with milliseconds.
package api

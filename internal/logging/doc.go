// Package logging assembles structured slog loggers and formatting helpers used
// across tankobon.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so acquisition code tags its log lines with
// the job label, source document id, stage and correlation id. A no-op logger
// is provided for tests and wiring code that cannot fail.
package logging

// Package services defines shared utilities consumed by the acquisition
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job labels, source identifiers, stage names,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     as clean (safe to resubmit) or requiring manual intervention.
//
// Use these helpers when wiring new pipeline logic so error handling and
// observability stay uniform across components.
package services

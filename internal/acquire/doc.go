// Package acquire runs acquisition jobs: resolve a source record, check the
// idempotency gates, reconcile its tags, fetch its fragments into the staging
// directory and commit the result into the archive.
//
// Run executes a job synchronously. Submit performs everything up to and
// including tag reconciliation in the caller's goroutine, so unresolved tags
// and duplicates are reported immediately, then fetches and commits in a
// background goroutine whose progress is published to the registry under the
// job label. Close cancels background jobs and waits for them; a cancelled
// fetch is cleaned up exactly like a failed one.
package acquire

// Package fetch downloads a document's fragments concurrently and assembles
// them into a single zip container.
//
// At most Fetch.MaxConcurrency fragments are in flight. Fragments finishing
// out of order wait in a reorder buffer and are written to the destination as
// soon as every earlier fragment has been written, so the container always
// lists entries in declared order and identical inputs produce identical
// bytes. Missing fragments (404/410) are permanent failures and are never
// retried; other failures are transient and may be retried per fragment when
// fetch.fragment_retries is set. Any failure aborts the whole download.
package fetch

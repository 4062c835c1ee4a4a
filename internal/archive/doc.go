// Package archive commits staged artifacts into the content-addressed archive
// and registers them in the catalog.
//
// The commit order is: hash, duplicate check, register the document as
// pending, link tags, link the source record, move the file into place, mark
// the document ready. Failures before the document exists leave nothing
// behind. Failures after it exists are flagged for manual intervention and
// never retried; the pending status is how such documents are found later.
package archive

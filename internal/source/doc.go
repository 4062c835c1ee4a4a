// Package source models documents published by the remote gallery service and
// provides the HTTP resolver used to look them up.
//
// A Record is read-only input to the acquisition pipeline. Raw tags are
// classified once at decode time into a tagged variant so downstream code
// never inspects the wire shape. The Client keeps a routing table that maps
// fragment hashes to download hosts; Refresh reloads it and is driven by the
// refresh scheduler.
package source

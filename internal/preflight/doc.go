// Package preflight provides readiness checks for the filesystem paths and
// remote source tankobon depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before serving. Blocking failures abort
//     startup; advisory ones are logged.
//   - The CLI "tankobon status" command prints every result.
package preflight

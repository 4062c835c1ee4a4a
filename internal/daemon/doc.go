// Package daemon coordinates the long-running tankobond process.
//
// It wires configuration, the catalog store, the resolver, the acquisition
// orchestrator, the task status registry and the routing refresh schedule
// into a single lifecycle with flock-based locking to prevent multiple
// instances. The HTTP API is a thin layer over the orchestrator; acquisition
// logic lives in internal/acquire.
//
// Keep orchestration logic here: individual acquisition steps should live in
// their respective packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon

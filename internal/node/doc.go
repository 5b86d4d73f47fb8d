// Package node wires a hivenode together and runs it.
//
// # Lifecycle
//
// New builds every component from a *config.Config: the SQLite job ledger,
// the tool registry with the default capability handlers, and, when the hive
// is enabled, the token manager, hive client, registrar, dispatcher and
// poller. Nothing talks to the network until Run.
//
// Run listens on server.http_addr, serves the local HTTP surface, registers
// with the hive in the background and starts the poller. It blocks until the
// context is canceled or the HTTP server fails.
//
// # Shutdown
//
// Shutdown runs in this order:
//
//  1. Stop accepting HTTP requests and end open event streams
//  2. Stop the poller; an in-flight poll and its batch finish first
//  3. Stop accepting pushed jobs and wait for running ones
//  4. Close the ledger
//
// A component that fails to close does not stop the others; the errors are
// joined and returned.
package node

// ABOUTME: Package store keeps the node's job ledger
// ABOUTME: SQLite for the running node, an in-memory mock for tests

// Package store provides persistent storage for the node using SQLite.
//
// The only entity is JobRecord: one row per dispatched job, whichever path
// delivered it (hive poll, /invoke push, or a local direct call). A record
// notes the tool, whether the handler succeeded, whether the hive accepted
// the report and how long the handler ran.
//
// The ledger is history for /status and operators. It is not a queue:
// nothing is replayed from it after a restart, so a crash still loses any
// in-flight job.
//
// # Implementations
//
//   - SQLiteStore: modernc.org/sqlite (pure Go, no cgo), WAL mode for file
//     databases. Pass MemoryPath for a throwaway in-memory ledger.
//   - MockStore: slice-backed, with FailWith for exercising write failures.
package store

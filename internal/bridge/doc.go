// ABOUTME: Package bridge connects the node to the remote dispatch service
// ABOUTME: Registration, the polling loop, job dispatch and the shared bridge state

// Package bridge runs the node's side of the hive connection.
//
// # Components
//
//   - Registrar announces the node once at startup. Failure is logged and
//     recorded in State; it never stops the node.
//   - Poller fetches pending jobs on a fixed interval and hands each batch
//     to the Dispatcher in the order the hive returned it.
//   - Dispatcher runs one job against the tool registry and reports the
//     result back. It also serves the push path (/invoke) via Submit.
//   - State holds the registered flag, processed-job counter, last-sync time
//     and poll-active flag. Each field has a single writer; readers take a
//     Snapshot.
//
// # Delivery
//
// Results are reported at most once. A report that fails is logged and
// dropped. A job id that arrives by both poll and push within the dedupe
// window runs once.
//
// The processed counter counts jobs whose report was attempted, whether or
// not the hive accepted it. The job ledger records which reports failed.
package bridge

// ABOUTME: Package hive talks to the remote dispatch service
// ABOUTME: Registration, pending-job polling and result reporting over authenticated HTTP

// Package hive is the node's client for the dispatch service ("the hive").
//
// Three calls are supported, all authenticated with a bearer credential
// obtained from a CredentialSource:
//
//	POST {base}/nodes/register         {node_id, capabilities, callback_url}
//	GET  {base}/nodes/{id}/pending     -> [{job_id, tool, args, callback_url}]
//	POST {base}/nodes/{id}/result      {job_id, result}
//
// Requests run through a circuit breaker so a dead hive fails fast instead
// of stacking up 10s timeouts. Server errors and network failures count
// against the breaker; client errors (4xx) do not. A 401 also invalidates
// the cached credential so the next call reauthorizes.
//
// Every failure is returned as *TransportError, which carries the operation
// name and, when the hive answered, its status code.
package hive

// Package tools holds the node's capability handlers behind a single registry.
//
// # Overview
//
// Every capability the node offers (filesystem access, shell execution,
// workflow triggers, speech generation) is a Tool. The registry knows each
// tool's Descriptor and forwards invocations to it; it does not know what a
// tool does.
//
// # Invoke contract
//
// A Tool receives its arguments as raw JSON and returns any JSON-encodable
// value or an error. Before a tool sees its arguments the registry validates
// them against the JSON Schema generated from the tool's declared params, so
// handlers can decode into their own typed argument struct with DecodeArgs.
//
// Each descriptor states its own timeout. A zero Timeout means the handler
// runs without a deadline; a non-zero one is enforced by the handler itself.
//
// # Errors
//
//   - ErrToolNotFound: no tool with that name is registered
//   - *ArgumentError: arguments failed schema validation or decoding
//   - *HandlerError: the tool returned an error or panicked
//
// # Usage
//
//	registry := tools.NewRegistry(logger)
//	_ = registry.Register(builtins.NewFilesystem())
//
//	result, err := registry.Invoke(ctx, "filesystem", json.RawMessage(`{"action":"list","path":"/tmp"}`))
package tools

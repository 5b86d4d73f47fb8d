// Package builtins provides the node's capability handlers.
//
// # Tools
//
//   - filesystem:   read, write or list a path (listing capped at 100 entries)
//   - local_exec:   run a shell command, 60s limit, dangerous commands blocked in safe mode
//   - n8n_trigger:  POST a payload to an n8n webhook, 30s limit
//   - bark_tts:     synthesize speech with a local Bark install, 120s limit
//
// Each handler implements tools.Tool and decodes its own typed arguments.
// The node core treats them as opaque; anything here can be replaced by a
// different implementation with the same name and schema.
//
// # Usage
//
//	registry := tools.NewRegistry(logger)
//	registry.MustRegister(builtins.All(builtins.Options{N8NURL: cfg.Tools.N8NURL})...)
package builtins

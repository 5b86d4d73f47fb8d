// Package mcp implements the node's local HTTP surface, including a Model
// Context Protocol endpoint for development clients.
//
// # Protocol
//
// JSON-RPC 2.0 over plain HTTP POST. Key endpoints:
//
//   - POST /mcp/message - JSON-RPC requests (initialize, tools/list, tools/call)
//   - GET /sse - event stream announcing /mcp/message, then pinging every 30s
//
// Every request gets exactly one response. Errors use the standard codes:
// -32700 for unparseable bodies, -32600 for a wrong jsonrpc version or a body
// over 1MB, -32601 for unknown methods and tools, -32602 for arguments that
// fail the tool's schema.
//
// # Tool Execution
//
// Clients call tools/call to execute a tool:
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/call",
//	  "params": {
//	    "name": "filesystem",
//	    "arguments": {"action": "list", "path": "/tmp"}
//	  },
//	  "id": 2
//	}
//
// The result is the handler's output serialized as a single text block. A
// failing handler produces a result too, with isError set and the text
// {"error": "<message>"}; it is never a JSON-RPC error.
//
// # Plain HTTP
//
//   - GET /mcp/tools - tool descriptors
//   - POST /mcp/invoke - {tool, args} -> {result}
//   - POST /invoke - job pushed by the hive, acknowledged with 202 before it runs
//   - GET /health, GET /status - bridge state snapshots
//
// # Integration with MCP clients
//
//	{
//	  "mcpServers": {
//	    "hivenode": {
//	      "url": "http://localhost:8000/mcp/message"
//	    }
//	  }
//	}
package mcp

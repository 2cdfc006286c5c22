// Package mcpsup supervises concurrent sessions with multiple independent
// Model Context Protocol (MCP) servers reachable over heterogeneous
// transports: local subprocess pipes (stdio) or HTTP event streams (SSE). It
// validates raw connection descriptors into an immutable tagged union, builds
// the matching go-sdk transport, opens and monitors one session per server,
// flattens every session's discovered tools into a single queryable registry,
// and re-establishes sessions after transport failure according to per-server
// restart/reconnect policies.
//
// # Core entry points
//
//   - Supervisor is the long-lived orchestration type. Construct it with New
//     (which also picks up an mcp.json in the working directory when present),
//     NewFromConfig, or NewFromFile, then call InitializeAll.
//   - AddConnections and AddConnectionsFromFile merge additional servers;
//     later entries with the same name overwrite earlier ones.
//   - Tools, ServerForTool, Client, and CallTool query and use the connected
//     fleet. Close tears everything down.
//
// Failure handling is per server: a transport closure on a server whose
// policy is enabled evicts the server's bookkeeping, then retries with the
// configured delay until it reconnects or exhausts maxAttempts. Retry errors
// are logged, never propagated; an exhausted server is simply absent from
// tool queries.
//
// The wire protocol itself comes from modelcontextprotocol/go-sdk; this
// package consumes its client, session, and transport types opaquely.
package mcpsup

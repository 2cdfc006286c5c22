// Package mcpgateway re-exposes the tool registry of an mcpsup.Supervisor
// over a single Streamable MCP endpoint. Downstream clients connect to one
// CORS-enabled HTTP host and call any upstream server's tools under
// namespaced names; calls pass straight through to the owning session.
package mcpgateway

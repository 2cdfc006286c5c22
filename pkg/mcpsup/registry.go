package mcpsup

import "github.com/modelcontextprotocol/go-sdk/mcp"

// ServerTool is one registry entry: a discovered tool together with the name
// of the server that exports it.
type ServerTool struct {
	Server string
	Tool   *mcp.Tool
}

// toolRegistry is the flattened, queryable view over all sessions' discovered
// tools. Iteration order is stable: servers in registration order, tools in
// per-server discovery order. The registry is not safe for concurrent use;
// the supervisor serializes access behind its own mutex.
type toolRegistry struct {
	order []string
	tools map[string][]*mcp.Tool
}

func newToolRegistry() *toolRegistry {
	return &toolRegistry{tools: make(map[string][]*mcp.Tool)}
}

// register replaces the tool set for a server, appending the server to the
// iteration order on first registration.
func (r *toolRegistry) register(server string, tools []*mcp.Tool) {
	if _, known := r.tools[server]; !known {
		r.order = append(r.order, server)
	}
	r.tools[server] = tools
}

// remove drops a server's entries entirely, including its slot in the
// iteration order. A server re-registered later re-enters at the end.
func (r *toolRegistry) remove(server string) {
	if _, known := r.tools[server]; !known {
		return
	}
	delete(r.tools, server)
	for i, name := range r.order {
		if name == server {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *toolRegistry) all() []ServerTool {
	var out []ServerTool
	for _, server := range r.order {
		for _, tool := range r.tools[server] {
			out = append(out, ServerTool{Server: server, Tool: tool})
		}
	}
	return out
}

// forServers filters to the named servers, silently skipping names with no
// registered tools.
func (r *toolRegistry) forServers(names []string) []ServerTool {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	var out []ServerTool
	for _, server := range r.order {
		if !wanted[server] {
			continue
		}
		for _, tool := range r.tools[server] {
			out = append(out, ServerTool{Server: server, Tool: tool})
		}
	}
	return out
}

// serverOf resolves a tool name to its exporting server. Tool names are
// assumed unique within a server but not across servers; on a cross-server
// collision the first match in iteration order wins.
func (r *toolRegistry) serverOf(toolName string) (string, bool) {
	for _, server := range r.order {
		for _, tool := range r.tools[server] {
			if tool.Name == toolName {
				return server, true
			}
		}
	}
	return "", false
}

func (r *toolRegistry) clear() {
	r.order = nil
	r.tools = make(map[string][]*mcp.Tool)
}

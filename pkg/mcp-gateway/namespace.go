package mcpgateway

// NamespaceStrategy generates the downstream tool names for upstream servers.
// Implementations must be deterministic and collision-free for a given
// server/tool pair.
type NamespaceStrategy interface {
	ToolName(server, toolName string) string
}

// ServerPrefixNamespace prefixes every tool name with the originating server
// name, separated by a configurable delimiter (defaults to "__" to keep names
// within the character set most MCP clients accept).
type ServerPrefixNamespace struct {
	Separator string
}

func (s ServerPrefixNamespace) separator() string {
	if s.Separator == "" {
		return "__"
	}
	return s.Separator
}

func (s ServerPrefixNamespace) ToolName(server, toolName string) string {
	return server + s.separator() + toolName
}

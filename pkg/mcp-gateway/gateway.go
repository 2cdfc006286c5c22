package mcpgateway

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"

	"github.com/toolmesh/mcp-supervisor-go/pkg/mcpsup"
)

const (
	metaKeyServer     = "mcpgateway.server"
	metaKeyNativeName = "mcpgateway.native_name"
)

// Gateway fronts a supervisor's tool registry with a single Streamable MCP
// server. The published tool set mirrors the registry at the last Sync call;
// tool invocations pass through to the owning upstream session at call time.
type Gateway struct {
	sup  *mcpsup.Supervisor
	opts Options

	server        *mcp.Server
	streamHandler *mcp.StreamableHTTPHandler
	httpHandler   http.Handler

	mu        sync.Mutex
	published map[string]mcpsup.ServerTool

	httpServerMu sync.Mutex
	httpServer   *http.Server
}

// NewGateway builds a Gateway and publishes the supervisor's current tool
// registry.
func NewGateway(sup *mcpsup.Supervisor, opts *Options) (*Gateway, error) {
	if sup == nil {
		return nil, fmt.Errorf("mcpgateway: supervisor is required")
	}
	options := opts.withDefaults()
	g := &Gateway{
		sup:       sup,
		opts:      options,
		published: make(map[string]mcpsup.ServerTool),
	}

	g.server = mcp.NewServer(options.Implementation, &mcp.ServerOptions{HasTools: true})
	g.streamHandler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return g.server
	}, &options.Streamable)
	g.httpHandler = g.mountHandler()

	g.Sync()
	return g, nil
}

// Options returns the effective configuration after defaulting.
func (g *Gateway) Options() Options { return g.opts }

// Handler exposes the CORS-wrapped HTTP handler serving the Streamable
// endpoint.
func (g *Gateway) Handler() http.Handler { return g.httpHandler }

// Sync reconciles the published tool set with the supervisor's registry:
// tools that disappeared (closed or reconnecting servers) are removed, new
// ones are added under their namespaced names. Call it after InitializeAll
// and whenever the upstream fleet changes.
func (g *Gateway) Sync() {
	current := g.sup.Tools()

	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]bool, len(current))
	var added []mcpsup.ServerTool
	for _, entry := range current {
		name := g.opts.Namespace.ToolName(entry.Server, entry.Tool.Name)
		seen[name] = true
		if _, ok := g.published[name]; !ok {
			added = append(added, entry)
		}
	}

	var removed []string
	for name := range g.published {
		if !seen[name] {
			removed = append(removed, name)
			delete(g.published, name)
		}
	}

	if len(removed) > 0 {
		g.server.RemoveTools(removed...)
	}
	for _, entry := range added {
		name := g.opts.Namespace.ToolName(entry.Server, entry.Tool.Name)
		g.published[name] = entry
		g.server.AddTool(g.publishedTool(name, entry), g.makeToolHandler(entry))
	}

	if len(added) > 0 || len(removed) > 0 {
		g.opts.Logger.Info("gateway tool set updated",
			"added", len(added), "removed", len(removed), "published", len(g.published))
	}
}

// publishedTool clones an upstream tool under its gateway name, annotating the
// metadata with the origin so downstream clients can attribute it.
func (g *Gateway) publishedTool(name string, entry mcpsup.ServerTool) *mcp.Tool {
	tool := *entry.Tool
	tool.Name = name
	meta := maps.Clone(entry.Tool.Meta)
	if meta == nil {
		meta = map[string]any{}
	}
	meta[metaKeyServer] = entry.Server
	meta[metaKeyNativeName] = entry.Tool.Name
	tool.Meta = meta
	return &tool
}

func (g *Gateway) makeToolHandler(entry mcpsup.ServerTool) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if g.opts.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.opts.CallTimeout)
			defer cancel()
		}
		args := any(nil)
		if req.Params != nil {
			args = req.Params.Arguments
		}
		return g.sup.CallTool(ctx, entry.Server, entry.Tool.Name, args)
	}
}

// ListenAndServe runs an HTTP server until the provided context is cancelled
// or the server stops.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	g.httpServerMu.Lock()
	if g.httpServer != nil {
		srv := g.httpServer
		g.httpServerMu.Unlock()
		return fmt.Errorf("mcpgateway: server already running on %s", srv.Addr)
	}
	srv := &http.Server{Addr: g.opts.Addr, Handler: g.Handler()}
	g.httpServer = srv
	g.httpServerMu.Unlock()
	defer func() {
		g.httpServerMu.Lock()
		if g.httpServer == srv {
			g.httpServer = nil
		}
		g.httpServerMu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.httpServerMu.Lock()
	srv := g.httpServer
	g.httpServer = nil
	g.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

func (g *Gateway) mountHandler() http.Handler {
	path := g.opts.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	mux := http.NewServeMux()
	mux.Handle(path, g.streamHandler)
	if !strings.HasSuffix(path, "/") {
		mux.Handle(path+"/", g.streamHandler)
	}
	return cors.New(*g.opts.CORS).Handler(mux)
}

package mcpsup

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolAdapter converts a connected session's capabilities into the tool list
// registered for that server. It is an external collaborator: the default
// implementation issues a single tools/list call, but callers can inject their
// own to filter, rename, or enrich tools before registration.
type ToolAdapter func(ctx context.Context, serverName string, session *mcp.ClientSession) ([]*mcp.Tool, error)

// DefaultToolAdapter discovers tools with a plain tools/list request.
func DefaultToolAdapter(ctx context.Context, serverName string, session *mcp.ClientSession) ([]*mcp.Tool, error) {
	res, err := session.ListTools(ctx, nil)
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}

// Session is the live pairing of a connected transport and its protocol
// client for one named server. The session owns both exclusively and is the
// only party allowed to close them.
type Session struct {
	name        string
	incarnation string
	client      *mcp.Client
	session     *mcp.ClientSession
	tools       []*mcp.Tool

	closeOnce sync.Once
	closeErr  error
}

type sessionConfig struct {
	impl    *mcp.Implementation
	adapter ToolAdapter
	logger  *slog.Logger
}

// openSession connects a protocol client over the given transport and runs
// tool discovery. Connect failures surface as ConnectionError, discovery
// failures as ToolDiscoveryError; both are tagged with the server name.
func openSession(ctx context.Context, name string, transport mcp.Transport, cfg sessionConfig) (*Session, error) {
	client := mcp.NewClient(cfg.impl, nil)
	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, &ConnectionError{Server: name, Err: err}
	}

	adapter := cfg.adapter
	if adapter == nil {
		adapter = DefaultToolAdapter
	}
	tools, err := adapter(ctx, name, cs)
	if err != nil {
		_ = cs.Close()
		return nil, &ToolDiscoveryError{Server: name, Err: err}
	}

	s := &Session{
		name:        name,
		incarnation: uuid.NewString(),
		client:      client,
		session:     cs,
		tools:       tools,
	}
	cfg.logger.Debug("session opened",
		"server", name, "incarnation", s.incarnation, "tools", len(tools))
	return s, nil
}

// Name returns the server name this session is bound to.
func (s *Session) Name() string { return s.name }

// Incarnation identifies this connect/teardown cycle in logs and in the
// supervisor's cleanup ledger.
func (s *Session) Incarnation() string { return s.incarnation }

// Client exposes the underlying protocol session for passthrough calls.
func (s *Session) Client() *mcp.ClientSession { return s.session }

// Tools returns the inventory discovered when the session was opened. The
// slice is shared; callers must not mutate it.
func (s *Session) Tools() []*mcp.Tool { return s.tools }

// Wait blocks until the underlying transport closes, returning the terminal
// error if any. The supervisor uses this as the transport close notification.
func (s *Session) Wait() error { return s.session.Wait() }

// Close tears down the owned transport. It is idempotent: only the first call
// touches the transport and reports its error; later calls return nil.
func (s *Session) Close() error {
	first := false
	s.closeOnce.Do(func() {
		first = true
		s.closeErr = s.session.Close()
	})
	if !first {
		return nil
	}
	return s.closeErr
}

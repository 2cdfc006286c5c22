package mcpsup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// State is the per-server lifecycle phase tracked by the supervisor.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateGaveUp       State = "gave_up"
)

// Options configure a Supervisor.
type Options struct {
	// Logger receives structured diagnostics. Defaults to a discard logger.
	Logger *slog.Logger
	// ClientName is advertised to servers during initialization.
	ClientName string
	// ClientVersion is the semantic version reported to servers.
	ClientVersion string
	// ConnectTimeout bounds each connect+discover attempt, including attempts
	// made by the reconnect loop.
	ConnectTimeout time.Duration
	// TransportFactory overrides BuildTransport.
	TransportFactory TransportFactory
	// ToolAdapter overrides DefaultToolAdapter.
	ToolAdapter ToolAdapter
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.ClientName == "" {
		opts.ClientName = "mcpsup"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "1.0.0"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.TransportFactory == nil {
		opts.TransportFactory = BuildTransport
	}
	if opts.ToolAdapter == nil {
		opts.ToolAdapter = DefaultToolAdapter
	}
	return opts
}

// cleanupEntry is one idempotent close action in the shutdown ledger. Entries
// are appended per successfully opened session and executed in append order.
// A server torn down and rebuilt during reconnect leaves its original entry in
// place; closing twice is a no-op, so stale entries are harmless. The
// incarnation lets shutdown logs tell live and stale entries apart.
type cleanupEntry struct {
	server      string
	incarnation string
	close       func() error
}

// Supervisor owns the full map of named sessions. It validates configuration,
// builds transports, drives connect/initialize/discover per server, and runs
// the restart/reconnect state machine when a transport closes.
//
// The session map, tool registry, state map, and cleanup ledger are mutated
// only while holding mu; transport close hooks fire on their own goroutines.
type Supervisor struct {
	opts Options

	mu       sync.Mutex
	configs  map[string]*ConnectionDescriptor
	order    []string
	sessions map[string]*Session
	states   map[string]State
	registry *toolRegistry
	cleanup  []cleanupEntry
	closed   bool
}

// New constructs an empty Supervisor, then merges mcp.json from the working
// directory when the file exists. A missing file is not an error; an invalid
// one is reported as a warning because constructors cannot abort.
func New(opts *Options) *Supervisor {
	s := newSupervisor(opts)
	cfg, err := loadDefaultConfig()
	if err != nil {
		s.opts.Logger.Warn("ignoring default config file", "file", DefaultConfigFile, "error", err)
		return s
	}
	if cfg != nil {
		if err := s.AddConnections(cfg.Servers); err != nil {
			s.opts.Logger.Warn("ignoring default config file", "file", DefaultConfigFile, "error", err)
		}
	}
	return s
}

// NewFromConfig constructs a Supervisor from an inline configuration. The
// whole construction fails if any descriptor is invalid.
func NewFromConfig(cfg *Config, opts *Options) (*Supervisor, error) {
	s := newSupervisor(opts)
	if cfg != nil {
		if err := s.AddConnections(cfg.Servers); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewFromFile constructs a Supervisor from a configuration file.
func NewFromFile(path string, opts *Options) (*Supervisor, error) {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts)
}

func newSupervisor(opts *Options) *Supervisor {
	return &Supervisor{
		opts:     opts.withDefaults(),
		configs:  make(map[string]*ConnectionDescriptor),
		sessions: make(map[string]*Session),
		states:   make(map[string]State),
		registry: newToolRegistry(),
	}
}

// AddConnections validates and merges raw connection descriptors. Every entry
// must validate before any is accepted, so a failing batch leaves prior
// configuration untouched. A later entry with the same server name overwrites
// the earlier one; running sessions are not revalidated or restarted.
func (s *Supervisor) AddConnections(servers map[string]RawConnection) error {
	validated := make(map[string]*ConnectionDescriptor, len(servers))
	names := sortedNames(servers)
	for _, name := range names {
		desc, err := validateConnection(name, servers[name], s.opts.Logger)
		if err != nil {
			return err
		}
		validated[name] = desc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		if _, known := s.configs[name]; !known {
			s.order = append(s.order, name)
		}
		s.configs[name] = validated[name]
		if _, known := s.states[name]; !known {
			s.states[name] = StateDisconnected
		}
	}
	return nil
}

// AddConnectionsFromFile loads a configuration file and merges its servers.
func (s *Supervisor) AddConnectionsFromFile(path string) error {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return err
	}
	return s.AddConnections(cfg.Servers)
}

// Servers returns the configured server names in registration order.
func (s *Supervisor) Servers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Descriptor returns the validated descriptor for a server name, or nil when
// the name is unknown. Descriptors are immutable after validation.
func (s *Supervisor) Descriptor(name string) *ConnectionDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[name]
}

// Status reports the lifecycle state for a server name. Unknown names are
// Disconnected.
func (s *Supervisor) Status(name string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[name]; ok {
		return state
	}
	return StateDisconnected
}

// InitializeAll connects every configured server sequentially, in registration
// order, and returns the per-server tool map. A server's connect failure
// aborts the remaining unprocessed servers; servers connected earlier in the
// call stay connected. Already-connected servers are not re-dialed.
func (s *Supervisor) InitializeAll(ctx context.Context) (map[string][]*mcp.Tool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("mcpsup: supervisor is closed")
	}
	names := append([]string(nil), s.order...)
	s.mu.Unlock()

	result := make(map[string][]*mcp.Tool, len(names))
	for _, name := range names {
		s.mu.Lock()
		desc := s.configs[name]
		existing := s.sessions[name]
		s.mu.Unlock()
		if desc == nil {
			continue
		}
		if existing != nil {
			result[name] = existing.Tools()
			continue
		}

		connectCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
		sess, err := s.connect(connectCtx, name, desc)
		cancel()
		if err != nil {
			return nil, err
		}
		result[name] = sess.Tools()
	}
	return result, nil
}

// connect builds the transport, opens the session, registers its tools, and
// installs the transport close hook. On success the server is Connected and a
// close action has been appended to the cleanup ledger.
func (s *Supervisor) connect(ctx context.Context, name string, desc *ConnectionDescriptor) (*Session, error) {
	s.setState(name, StateConnecting)

	transport, err := s.opts.TransportFactory(desc, s.opts.Logger)
	if err != nil {
		s.setState(name, StateDisconnected)
		return nil, &ConnectionError{Server: name, Err: err}
	}

	sess, err := openSession(ctx, name, transport, sessionConfig{
		impl:    &mcp.Implementation{Name: s.opts.ClientName, Version: s.opts.ClientVersion},
		adapter: s.opts.ToolAdapter,
		logger:  s.opts.Logger,
	})
	if err != nil {
		s.setState(name, StateDisconnected)
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sess.Close()
		return nil, &ConnectionError{Server: name, Err: errors.New("supervisor closed during connect")}
	}
	s.sessions[name] = sess
	s.registry.register(name, sess.Tools())
	s.cleanup = append(s.cleanup, cleanupEntry{
		server:      name,
		incarnation: sess.Incarnation(),
		close:       sess.Close,
	})
	s.states[name] = StateConnected
	s.mu.Unlock()

	go s.watchSession(name, desc, sess)

	s.opts.Logger.Info("server connected",
		"server", name, "transport", desc.Kind, "tools", len(sess.Tools()))
	return sess, nil
}

// watchSession is the transport close hook. It fires when the session's
// transport ends for any reason and decides whether this was an operator
// close (session no longer in the live map, or the supervisor shut down) or a
// failure that enters the recovery path.
func (s *Supervisor) watchSession(name string, desc *ConnectionDescriptor, sess *Session) {
	err := sess.Wait()

	s.mu.Lock()
	if s.closed || s.sessions[name] != sess {
		// Operator-initiated close or a superseded incarnation.
		s.mu.Unlock()
		return
	}
	// Evict all bookkeeping before any retry: the registry must never expose
	// a stale tool set concurrently with a fresh connection attempt.
	delete(s.sessions, name)
	s.registry.remove(name)
	policy := desc.policy()
	if !policy.Enabled {
		s.states[name] = StateDisconnected
		s.mu.Unlock()
		s.opts.Logger.Warn("server disconnected; recovery disabled",
			"server", name, "incarnation", sess.Incarnation(), "error", err)
		return
	}
	s.states[name] = StateReconnecting
	s.mu.Unlock()

	s.opts.Logger.Warn("server disconnected; entering recovery",
		"server", name, "incarnation", sess.Incarnation(), "error", err)
	s.recover(name, desc, policy)
}

// recover runs the reconnect loop for one server. Attempt errors are logged
// and never propagated; the only caller-visible effect of exhausted retries is
// the server's absence from subsequent tool queries.
func (s *Supervisor) recover(name string, desc *ConnectionDescriptor, policy Policy) {
	attempts := 0
	for {
		attempts++
		if policy.MaxAttempts > 0 && attempts > policy.MaxAttempts {
			s.setState(name, StateGaveUp)
			s.opts.Logger.Error("recovery attempts exhausted; giving up",
				"server", name, "attempts", policy.MaxAttempts)
			return
		}

		time.Sleep(policy.Delay)

		s.mu.Lock()
		if s.closed || s.configs[name] != desc {
			// Shut down, or the descriptor was replaced by a merge; the new
			// descriptor gets a fresh lifecycle of its own.
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ConnectTimeout)
		_, err := s.connect(ctx, name, desc)
		cancel()
		if err == nil {
			s.opts.Logger.Info("server recovered", "server", name, "attempts", attempts)
			return
		}
		s.setState(name, StateReconnecting)
		s.opts.Logger.Warn("recovery attempt failed",
			"server", name, "attempt", attempts, "error", err)
	}
}

// Tools returns registered tools. With no arguments it returns every server's
// tools in server registration order then discovery order; with arguments it
// filters to the named servers, silently skipping names that have no
// registered tools.
func (s *Supervisor) Tools(serverNames ...string) []ServerTool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(serverNames) == 0 {
		return s.registry.all()
	}
	return s.registry.forServers(serverNames)
}

// Client returns the live protocol session for a server, or nil when the
// server is not currently connected.
func (s *Supervisor) Client(name string) *mcp.ClientSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[name]; ok {
		return sess.Client()
	}
	return nil
}

// ServerForTool resolves a tool name to the server exporting it. When two
// servers export identically named tools the first registered wins; callers
// needing determinism should scope lookups with Tools(server...).
func (s *Supervisor) ServerForTool(toolName string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.serverOf(toolName)
}

// CallTool invokes a tool on the named server's already-connected session.
// This is a passthrough: no queueing, retry, or scheduling.
func (s *Supervisor) CallTool(ctx context.Context, server, tool string, args any) (*mcp.CallToolResult, error) {
	session := s.Client(server)
	if session == nil {
		return nil, fmt.Errorf("mcpsup: server %q is not connected", server)
	}
	return session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
}

// Close shuts the supervisor down: it runs the cleanup ledger in append order
// and clears every supervisor-owned map. The supervisor is terminal afterwards
// and in-flight recovery loops exit on their next liveness check.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ledger := s.cleanup
	s.cleanup = nil
	s.sessions = make(map[string]*Session)
	s.registry.clear()
	for name := range s.states {
		s.states[name] = StateDisconnected
	}
	s.mu.Unlock()

	var errs []error
	for _, entry := range ledger {
		if err := entry.close(); err != nil {
			s.opts.Logger.Warn("close failed",
				"server", entry.server, "incarnation", entry.incarnation, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", entry.server, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Supervisor) setState(name string, state State) {
	s.mu.Lock()
	s.states[name] = state
	s.mu.Unlock()
}

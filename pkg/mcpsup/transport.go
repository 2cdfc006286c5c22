package mcpsup

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// TransportFactory builds the communication channel for a validated
// descriptor. The supervisor uses BuildTransport unless an Options override is
// supplied (tests inject in-memory transports through this seam).
type TransportFactory func(desc *ConnectionDescriptor, logger *slog.Logger) (mcp.Transport, error)

// BuildTransport is the default TransportFactory. Stdio descriptors never
// fail; remote streams fail only when every event-stream candidate is
// unavailable, which the shipped candidate list cannot hit because the bare
// fallback is always constructible.
func BuildTransport(desc *ConnectionDescriptor, logger *slog.Logger) (mcp.Transport, error) {
	switch desc.Kind {
	case TransportStdio:
		return buildCommandTransport(desc.Local), nil
	case TransportSSE:
		return buildEventStreamTransport(desc.Name, desc.Remote, logger)
	default:
		return nil, &TransportInitError{Server: desc.Name, Err: fmt.Errorf("unknown transport kind %q", desc.Kind)}
	}
}

func buildCommandTransport(cfg *LocalProcess) mcp.Transport {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	return &mcp.CommandTransport{Command: cmd}
}

// eventStreamStrategy is one candidate way of constructing a header-carrying
// event-stream transport. Candidates are tried in declaration order; one that
// is unavailable or fails to build falls through to the next.
type eventStreamStrategy struct {
	name      string
	available func() bool
	build     func(cfg *RemoteStream) (mcp.Transport, error)
}

// enhancedEventStreamAvailable gates the first candidate. Overridden in tests
// to exercise the fallback chain.
var enhancedEventStreamAvailable = func() bool { return true }

var eventStreamStrategies = []eventStreamStrategy{
	{
		// Header-aware client: every request carries the configured headers
		// through a dedicated RoundTripper.
		name:      "enhanced",
		available: func() bool { return enhancedEventStreamAvailable() },
		build: func(cfg *RemoteStream) (mcp.Transport, error) {
			return &mcp.SSEClientTransport{
				Endpoint:   cfg.URL,
				HTTPClient: headerClient(http.DefaultClient, cfg.Headers, false),
			}, nil
		},
	},
	{
		// Standard client with headers injected at request initialization;
		// already-set headers are preserved.
		name:      "request-init",
		available: func() bool { return true },
		build: func(cfg *RemoteStream) (mcp.Transport, error) {
			return &mcp.SSEClientTransport{
				Endpoint:   cfg.URL,
				HTTPClient: headerClient(http.DefaultClient, cfg.Headers, true),
			}, nil
		},
	},
}

func buildEventStreamTransport(server string, cfg *RemoteStream, logger *slog.Logger) (mcp.Transport, error) {
	if len(cfg.Headers) == 0 {
		return &mcp.SSEClientTransport{Endpoint: cfg.URL}, nil
	}

	for _, strategy := range eventStreamStrategies {
		if cfg.UseNodeEventSource && strategy.name == "enhanced" {
			continue
		}
		if !strategy.available() {
			logger.Debug("event-stream candidate unavailable", "server", server, "candidate", strategy.name)
			continue
		}
		transport, err := strategy.build(cfg)
		if err != nil {
			logger.Debug("event-stream candidate failed to build",
				"server", server, "candidate", strategy.name, "error", err)
			continue
		}
		return transport, nil
	}

	// Bare fallback: the transport still works, but header delivery depends on
	// the default client implementation.
	logger.Warn("no header-aware event-stream candidate usable; custom headers may be dropped",
		"server", server)
	return &mcp.SSEClientTransport{Endpoint: cfg.URL}, nil
}

// headerClient clones base and installs a RoundTripper that applies headers to
// outbound requests. When preserveExisting is set, a header already present on
// the request wins over the configured value.
func headerClient(base *http.Client, headers map[string]string, preserveExisting bool) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	clone := *base
	clone.Transport = &headerRoundTripper{
		next:             defaultRoundTripper(base.Transport),
		headers:          headers,
		preserveExisting: preserveExisting,
	}
	return &clone
}

type headerRoundTripper struct {
	next             http.RoundTripper
	headers          map[string]string
	preserveExisting bool
}

func (rt *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for key, value := range rt.headers {
		if rt.preserveExisting && req.Header.Get(key) != "" {
			continue
		}
		req.Header.Set(key, value)
	}
	return rt.next.RoundTrip(req)
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}

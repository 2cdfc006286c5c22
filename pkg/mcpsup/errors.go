package mcpsup

import "fmt"

// InvalidConfigError reports a malformed or ambiguous connection descriptor.
// It is fatal to the add or construct call that produced it; previously
// accepted configuration is left untouched.
type InvalidConfigError struct {
	Server string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	if e.Server == "" {
		return fmt.Sprintf("mcpsup: invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("mcpsup: invalid configuration for %q: %s", e.Server, e.Reason)
}

// ConnectionError reports a transport-level connect failure for one server.
// It aborts that server's initialization attempt but never rolls back sibling
// servers connected earlier in the same batch.
type ConnectionError struct {
	Server string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcpsup: failed to connect to %q: %v", e.Server, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ToolDiscoveryError reports a post-connect tool discovery failure. Same
// fatality scope as ConnectionError.
type ToolDiscoveryError struct {
	Server string
	Err    error
}

func (e *ToolDiscoveryError) Error() string {
	return fmt.Sprintf("mcpsup: tool discovery failed for %q: %v", e.Server, e.Err)
}

func (e *ToolDiscoveryError) Unwrap() error { return e.Err }

// TransportInitError reports a construction-time failure building a remote
// stream channel. Callers of the supervisor see it wrapped in a
// ConnectionError for the affected server.
type TransportInitError struct {
	Server string
	Err    error
}

func (e *TransportInitError) Error() string {
	return fmt.Sprintf("mcpsup: failed to build transport for %q: %v", e.Server, e.Err)
}

func (e *TransportInitError) Unwrap() error { return e.Err }

package mcpsup

import "time"

// TransportKind discriminates the two connection variants. It is produced once
// by validation; downstream code switches on it and never re-inspects the raw
// descriptor shape.
type TransportKind string

const (
	// TransportStdio launches the server as a local subprocess and speaks the
	// protocol over its stdin/stdout pipes.
	TransportStdio TransportKind = "stdio"
	// TransportSSE connects to a remote server over an HTTP event stream.
	TransportSSE TransportKind = "sse"
)

// Encoding-error policies accepted for stdio descriptors.
const (
	EncodingErrorStrict  = "strict"
	EncodingErrorIgnore  = "ignore"
	EncodingErrorReplace = "replace"
)

// Default inter-attempt delays applied when a policy omits delayMs.
const (
	DefaultRestartDelay   = 1000 * time.Millisecond
	DefaultReconnectDelay = 3000 * time.Millisecond
)

// Policy governs whether and how aggressively the supervisor re-establishes a
// session after its transport closes. Restart (stdio) and reconnect (sse)
// policies are structurally identical.
type Policy struct {
	// Enabled opts the server into failure recovery. When false the server
	// transitions to Disconnected permanently on transport closure.
	Enabled bool
	// MaxAttempts bounds consecutive recovery attempts. Zero means unlimited.
	MaxAttempts int
	// Delay is the wait between the closure (or a failed attempt) and the next
	// connection attempt.
	Delay time.Duration
}

// LocalProcess describes a server launched as a subprocess.
//
// Encoding and EncodingErrorHandler are validated and retained for config
// compatibility; subprocess pipes carry raw bytes, so they do not alter
// transport behavior here.
type LocalProcess struct {
	Command              string
	Args                 []string
	Env                  map[string]string
	Encoding             string
	EncodingErrorHandler string
	Restart              Policy
}

// RemoteStream describes a server reachable over an HTTP event stream.
type RemoteStream struct {
	URL     string
	Headers map[string]string
	// UseNodeEventSource selects the alternate event-stream implementation in
	// the factory's fallback order.
	UseNodeEventSource bool
	Reconnect          Policy
}

// ConnectionDescriptor is the validated, immutable form of one server entry.
// Exactly one of Local or Remote is set, consistent with Kind.
type ConnectionDescriptor struct {
	Name   string
	Kind   TransportKind
	Local  *LocalProcess
	Remote *RemoteStream
}

// policy returns the recovery policy for the active variant.
func (d *ConnectionDescriptor) policy() Policy {
	switch d.Kind {
	case TransportStdio:
		return d.Local.Restart
	case TransportSSE:
		return d.Remote.Reconnect
	default:
		return Policy{}
	}
}

// RawConnection is a single unvalidated server entry as decoded from a config
// file or supplied inline.
type RawConnection map[string]any

// Config mirrors the on-disk configuration layout: a single "servers" object
// mapping server name to raw connection descriptor.
type Config struct {
	Servers map[string]RawConnection `json:"servers" yaml:"servers"`
}

package mcpsup

import (
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"regexp"
	"sort"
	"time"
)

// envPlaceholder matches string values consisting solely of ${NAME}.
// Partial placeholders embedded in longer strings are left alone.
var envPlaceholder = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// validateConnection normalizes a raw descriptor into a ConnectionDescriptor.
// Validation is strict and fails on the first violation; the only tolerated
// degradation is an unset environment-variable placeholder, which is preserved
// verbatim and logged as a warning.
func validateConnection(name string, raw RawConnection, logger *slog.Logger) (*ConnectionDescriptor, error) {
	if len(raw) == 0 {
		return nil, &InvalidConfigError{Server: name, Reason: "empty descriptor"}
	}

	transport, ok, err := stringField(name, raw, "transport")
	if err != nil {
		return nil, err
	}
	if ok && transport != string(TransportStdio) && transport != string(TransportSSE) {
		return nil, &InvalidConfigError{Server: name, Reason: fmt.Sprintf("unknown transport %q", transport)}
	}

	_, hasCommand := raw["command"]
	_, hasURL := raw["url"]

	switch {
	case (transport == "" || transport == string(TransportStdio)) && hasCommand:
		local, err := validateLocalProcess(name, raw, logger)
		if err != nil {
			return nil, err
		}
		return &ConnectionDescriptor{Name: name, Kind: TransportStdio, Local: local}, nil
	case transport == string(TransportSSE) && hasURL:
		remote, err := validateRemoteStream(name, raw, logger)
		if err != nil {
			return nil, err
		}
		return &ConnectionDescriptor{Name: name, Kind: TransportSSE, Remote: remote}, nil
	default:
		return nil, &InvalidConfigError{Server: name, Reason: "unsupported or ambiguous configuration"}
	}
}

func validateLocalProcess(name string, raw RawConnection, logger *slog.Logger) (*LocalProcess, error) {
	// The env map is interpolated by name in one pass before any other field.
	env, err := stringMapField(name, raw, "env")
	if err != nil {
		return nil, err
	}
	for key, value := range env {
		env[key] = interpolateEnv(name, value, logger)
	}

	command, ok, err := stringField(name, raw, "command")
	if err != nil {
		return nil, err
	}
	if !ok || command == "" {
		return nil, &InvalidConfigError{Server: name, Reason: "command must be a non-empty string"}
	}
	command = interpolateEnv(name, command, logger)

	args, err := stringSliceField(name, raw, "args")
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = []string{}
	}
	for i, arg := range args {
		args[i] = interpolateEnv(name, arg, logger)
	}

	encoding, ok, err := stringField(name, raw, "encoding")
	if err != nil {
		return nil, err
	}
	if !ok || encoding == "" {
		encoding = "utf-8"
	}

	handler, ok, err := stringField(name, raw, "encodingErrorHandler")
	if err != nil {
		return nil, err
	}
	if !ok || handler == "" {
		handler = EncodingErrorStrict
	}
	switch handler {
	case EncodingErrorStrict, EncodingErrorIgnore, EncodingErrorReplace:
	default:
		return nil, &InvalidConfigError{Server: name, Reason: fmt.Sprintf("encodingErrorHandler must be one of strict, ignore, replace; got %q", handler)}
	}

	restart, err := policyField(name, raw, "restart", DefaultRestartDelay)
	if err != nil {
		return nil, err
	}

	return &LocalProcess{
		Command:              command,
		Args:                 args,
		Env:                  env,
		Encoding:             encoding,
		EncodingErrorHandler: handler,
		Restart:              restart,
	}, nil
}

func validateRemoteStream(name string, raw RawConnection, logger *slog.Logger) (*RemoteStream, error) {
	rawURL, ok, err := stringField(name, raw, "url")
	if err != nil {
		return nil, err
	}
	if !ok || rawURL == "" {
		return nil, &InvalidConfigError{Server: name, Reason: "url must be a non-empty string"}
	}
	rawURL = interpolateEnv(name, rawURL, logger)

	parsed, parseErr := url.Parse(rawURL)
	if parseErr != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, &InvalidConfigError{Server: name, Reason: fmt.Sprintf("url %q is not a valid absolute URL", rawURL)}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, &InvalidConfigError{Server: name, Reason: fmt.Sprintf("url scheme %q is not supported; use http or https", parsed.Scheme)}
	}

	headers, err := stringMapField(name, raw, "headers")
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		headers[key] = interpolateEnv(name, value, logger)
	}

	useNode, err := boolField(name, raw, "useNodeEventSource")
	if err != nil {
		return nil, err
	}

	reconnect, err := policyField(name, raw, "reconnect", DefaultReconnectDelay)
	if err != nil {
		return nil, err
	}

	return &RemoteStream{
		URL:                rawURL,
		Headers:            headers,
		UseNodeEventSource: useNode,
		Reconnect:          reconnect,
	}, nil
}

// interpolateEnv substitutes a value of the exact form ${NAME} with the
// environment variable's value. Unset variables leave the placeholder
// untouched and log a warning rather than failing validation.
func interpolateEnv(server, value string, logger *slog.Logger) string {
	match := envPlaceholder.FindStringSubmatch(value)
	if match == nil {
		return value
	}
	if resolved, ok := os.LookupEnv(match[1]); ok {
		return resolved
	}
	logger.Warn("environment variable not set; placeholder left unsubstituted",
		"server", server, "variable", match[1])
	return value
}

func stringField(server string, raw RawConnection, key string) (string, bool, error) {
	value, present := raw[key]
	if !present {
		return "", false, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", false, &InvalidConfigError{Server: server, Reason: fmt.Sprintf("%s must be a string", key)}
	}
	return s, true, nil
}

func boolField(server string, raw RawConnection, key string) (bool, error) {
	value, present := raw[key]
	if !present {
		return false, nil
	}
	b, ok := value.(bool)
	if !ok {
		return false, &InvalidConfigError{Server: server, Reason: fmt.Sprintf("%s must be a boolean", key)}
	}
	return b, nil
}

func stringSliceField(server string, raw RawConnection, key string) ([]string, error) {
	value, present := raw[key]
	if !present {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, &InvalidConfigError{Server: server, Reason: fmt.Sprintf("%s must be an array of strings", key)}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &InvalidConfigError{Server: server, Reason: fmt.Sprintf("%s must be an array of strings", key)}
		}
		out = append(out, s)
	}
	return out, nil
}

func stringMapField(server string, raw RawConnection, key string) (map[string]string, error) {
	value, present := raw[key]
	if !present {
		return nil, nil
	}
	entries, ok := value.(map[string]any)
	if !ok {
		return nil, &InvalidConfigError{Server: server, Reason: fmt.Sprintf("%s must be an object with string values", key)}
	}
	out := make(map[string]string, len(entries))
	for k, v := range entries {
		s, ok := v.(string)
		if !ok {
			return nil, &InvalidConfigError{Server: server, Reason: fmt.Sprintf("%s.%s must be a string", key, k)}
		}
		out[k] = s
	}
	return out, nil
}

func policyField(server string, raw RawConnection, key string, defaultDelay time.Duration) (Policy, error) {
	policy := Policy{Delay: defaultDelay}
	value, present := raw[key]
	if !present {
		return policy, nil
	}
	entries, ok := value.(map[string]any)
	if !ok {
		return policy, &InvalidConfigError{Server: server, Reason: fmt.Sprintf("%s must be an object", key)}
	}

	if enabled, present := entries["enabled"]; present {
		b, ok := enabled.(bool)
		if !ok {
			return policy, &InvalidConfigError{Server: server, Reason: fmt.Sprintf("%s.enabled must be a boolean", key)}
		}
		policy.Enabled = b
	}

	if attempts, present := entries["maxAttempts"]; present {
		n, ok := intValue(attempts)
		if !ok || n <= 0 {
			return policy, &InvalidConfigError{Server: server, Reason: fmt.Sprintf("%s.maxAttempts must be a positive integer", key)}
		}
		policy.MaxAttempts = n
	}

	if delay, present := entries["delayMs"]; present {
		n, ok := intValue(delay)
		if !ok || n < 0 {
			return policy, &InvalidConfigError{Server: server, Reason: fmt.Sprintf("%s.delayMs must be a non-negative integer", key)}
		}
		policy.Delay = time.Duration(n) * time.Millisecond
	}

	return policy, nil
}

// intValue accepts the numeric representations produced by the JSON and YAML
// decoders.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// sortedNames returns the keys of a raw server map in deterministic order.
func sortedNames(servers map[string]RawConnection) []string {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

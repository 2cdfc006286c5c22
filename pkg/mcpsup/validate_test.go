package mcpsup

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler captures log records so tests can assert on warnings.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) messages(level slog.Level) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range h.records {
		if r.Level == level {
			out = append(out, r.Message)
		}
	}
	return out
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestValidateStdioDefaults(t *testing.T) {
	t.Parallel()

	desc, err := validateConnection("fs", RawConnection{
		"command": "node",
	}, discardLogger())
	require.NoError(t, err)

	require.Equal(t, TransportStdio, desc.Kind)
	require.NotNil(t, desc.Local)
	assert.Nil(t, desc.Remote)
	assert.Equal(t, "node", desc.Local.Command)

	// args defaults to an empty slice, not absent.
	require.NotNil(t, desc.Local.Args)
	assert.Empty(t, desc.Local.Args)

	assert.Equal(t, "utf-8", desc.Local.Encoding)
	assert.Equal(t, EncodingErrorStrict, desc.Local.EncodingErrorHandler)
	assert.False(t, desc.Local.Restart.Enabled)
	assert.Equal(t, DefaultRestartDelay, desc.Local.Restart.Delay)
	assert.Zero(t, desc.Local.Restart.MaxAttempts)
}

func TestValidateExplicitStdioTransport(t *testing.T) {
	t.Parallel()

	desc, err := validateConnection("fs", RawConnection{
		"transport": "stdio",
		"command":   "node",
		"args":      []any{"fs-server.js", "--root", "/tmp"},
	}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"fs-server.js", "--root", "/tmp"}, desc.Local.Args)
}

func TestValidateRemoteStream(t *testing.T) {
	t.Parallel()

	desc, err := validateConnection("search", RawConnection{
		"transport": "sse",
		"url":       "https://api.example.com/mcp",
		"headers":   map[string]any{"Authorization": "Bearer token"},
		"reconnect": map[string]any{"enabled": true, "maxAttempts": float64(5), "delayMs": float64(250)},
	}, discardLogger())
	require.NoError(t, err)

	require.Equal(t, TransportSSE, desc.Kind)
	require.NotNil(t, desc.Remote)
	assert.Nil(t, desc.Local)
	assert.Equal(t, "https://api.example.com/mcp", desc.Remote.URL)
	assert.Equal(t, map[string]string{"Authorization": "Bearer token"}, desc.Remote.Headers)
	assert.True(t, desc.Remote.Reconnect.Enabled)
	assert.Equal(t, 5, desc.Remote.Reconnect.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, desc.Remote.Reconnect.Delay)
}

func TestValidateReconnectDelayDefault(t *testing.T) {
	t.Parallel()

	desc, err := validateConnection("search", RawConnection{
		"transport": "sse",
		"url":       "https://api.example.com/mcp",
		"reconnect": map[string]any{"enabled": true},
	}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultReconnectDelay, desc.Remote.Reconnect.Delay)
}

func TestValidateRejectsNonHTTPURL(t *testing.T) {
	t.Parallel()

	for _, rawURL := range []string{"ftp://host", "ws://host/mcp", "not a url", "/relative"} {
		_, err := validateConnection("search", RawConnection{
			"transport": "sse",
			"url":       rawURL,
		}, discardLogger())
		var invalid *InvalidConfigError
		require.ErrorAs(t, err, &invalid, "url %q should be rejected", rawURL)
		assert.Equal(t, "search", invalid.Server)
	}
}

func TestValidateRejectsAmbiguousDescriptors(t *testing.T) {
	t.Parallel()

	cases := map[string]RawConnection{
		"empty":                 {},
		"url without transport": {"url": "https://api.example.com/mcp"},
		"sse without url":       {"transport": "sse"},
		"stdio without command": {"transport": "stdio"},
		"unknown transport":     {"transport": "websocket", "url": "https://api.example.com"},
	}
	for label, raw := range cases {
		_, err := validateConnection("srv", raw, discardLogger())
		var invalid *InvalidConfigError
		assert.ErrorAs(t, err, &invalid, "case %q", label)
	}
}

func TestValidateRejectsWrongFieldTypes(t *testing.T) {
	t.Parallel()

	cases := map[string]RawConnection{
		"args not array":          {"command": "node", "args": "fs-server.js"},
		"args mixed types":        {"command": "node", "args": []any{"ok", 7}},
		"env not object":          {"command": "node", "env": []any{"A=1"}},
		"env non-string value":    {"command": "node", "env": map[string]any{"A": 1}},
		"command not string":      {"command": 42},
		"restart not object":      {"command": "node", "restart": true},
		"restart.enabled string":  {"command": "node", "restart": map[string]any{"enabled": "yes"}},
		"maxAttempts not numeric": {"command": "node", "restart": map[string]any{"maxAttempts": "three"}},
		"maxAttempts fractional":  {"command": "node", "restart": map[string]any{"maxAttempts": 1.5}},
		"maxAttempts zero":        {"command": "node", "restart": map[string]any{"maxAttempts": float64(0)}},
		"delayMs negative":        {"command": "node", "restart": map[string]any{"delayMs": float64(-10)}},
		"headers non-string": {
			"transport": "sse",
			"url":       "https://api.example.com/mcp",
			"headers":   map[string]any{"X-Retry": 3},
		},
		"bad encodingErrorHandler": {"command": "node", "encodingErrorHandler": "panic"},
	}
	for label, raw := range cases {
		_, err := validateConnection("srv", raw, discardLogger())
		var invalid *InvalidConfigError
		assert.ErrorAs(t, err, &invalid, "case %q", label)
	}
}

func TestEnvInterpolationSubstitutesSetVariables(t *testing.T) {
	t.Setenv("MCPSUP_TEST_TOKEN", "s3cret")

	desc, err := validateConnection("fs", RawConnection{
		"command": "node",
		"args":    []any{"${MCPSUP_TEST_TOKEN}"},
		"env":     map[string]any{"TOKEN": "${MCPSUP_TEST_TOKEN}"},
	}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "s3cret", desc.Local.Env["TOKEN"])
	assert.Equal(t, []string{"s3cret"}, desc.Local.Args)
}

func TestEnvInterpolationPreservesUnsetPlaceholders(t *testing.T) {
	handler := &recordingHandler{}
	logger := slog.New(handler)

	desc, err := validateConnection("fs", RawConnection{
		"command": "node",
		"env":     map[string]any{"TOKEN": "${MCPSUP_DEFINITELY_UNSET_VAR}"},
	}, logger)
	require.NoError(t, err)

	// Unset placeholder stays verbatim and produces a warning, not a failure.
	assert.Equal(t, "${MCPSUP_DEFINITELY_UNSET_VAR}", desc.Local.Env["TOKEN"])
	require.NotEmpty(t, handler.messages(slog.LevelWarn))
}

func TestEnvInterpolationIgnoresPartialPlaceholders(t *testing.T) {
	t.Setenv("MCPSUP_TEST_HOME", "/home/example")

	desc, err := validateConnection("fs", RawConnection{
		"command": "node",
		"args":    []any{"--root=${MCPSUP_TEST_HOME}"},
	}, discardLogger())
	require.NoError(t, err)
	// Only values that are exactly ${NAME} are substituted.
	assert.Equal(t, []string{"--root=${MCPSUP_TEST_HOME}"}, desc.Local.Args)
}

func TestValidateInterpolatesURL(t *testing.T) {
	t.Setenv("MCPSUP_TEST_URL", "https://internal.example.com/mcp")

	desc, err := validateConnection("search", RawConnection{
		"transport": "sse",
		"url":       "${MCPSUP_TEST_URL}",
	}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "https://internal.example.com/mcp", desc.Remote.URL)
}

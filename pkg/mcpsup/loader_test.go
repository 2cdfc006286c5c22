package mcpsup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFileJSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "mcp.json", `{
		"servers": {
			"fs": {"command": "node", "args": ["fs-server.js"]},
			"search": {"transport": "sse", "url": "https://api.example.com/mcp"}
		}
	}`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, "node", cfg.Servers["fs"]["command"])
	assert.Equal(t, "sse", cfg.Servers["search"]["transport"])
}

func TestLoadConfigFileYAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "mcp.yaml", `
servers:
  fs:
    command: node
    args: [fs-server.js]
    restart:
      enabled: true
      delayMs: 100
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	require.Contains(t, cfg.Servers, "fs")

	// The YAML payload must survive the same validation path as JSON.
	desc, err := validateConnection("fs", cfg.Servers["fs"], discardLogger())
	require.NoError(t, err)
	assert.True(t, desc.Local.Restart.Enabled)
}

func TestLoadConfigFileErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)

	bad := writeFile(t, t.TempDir(), "mcp.json", "{not json")
	_, err = LoadConfigFile(bad)
	require.Error(t, err)
}

func TestLoadConfigFileWithoutServersKey(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "mcp.json", `{}`)
	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.NotNil(t, cfg.Servers)
	assert.Empty(t, cfg.Servers)
}

func TestNewDiscoversDefaultConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DefaultConfigFile, `{
		"servers": {"fs": {"command": "node", "args": ["fs-server.js"]}}
	}`)
	t.Chdir(dir)

	sup := New(nil)
	assert.Equal(t, []string{"fs"}, sup.Servers())
}

func TestNewWithoutDefaultConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())

	sup := New(nil)
	assert.Empty(t, sup.Servers())
}

func TestNewIgnoresInvalidDefaultConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DefaultConfigFile, `{"servers": {"fs": {}}}`)
	t.Chdir(dir)

	// An invalid auto-discovered file degrades to a warning; explicit loads
	// return the error instead.
	sup := New(nil)
	assert.Empty(t, sup.Servers())

	err := sup.AddConnectionsFromFile(DefaultConfigFile)
	var invalid *InvalidConfigError
	require.ErrorAs(t, err, &invalid)
}

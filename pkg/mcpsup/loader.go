package mcpsup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file name discovered automatically in the
// process working directory. Its absence is never an error.
const DefaultConfigFile = "mcp.json"

// LoadConfigFile reads and decodes a configuration file. JSON is the canonical
// format; .yaml/.yml files are accepted and feed the same validation path.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mcpsup: read config %s: %w", path, err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("mcpsup: parse config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("mcpsup: parse config %s: %w", path, err)
		}
	}

	if cfg.Servers == nil {
		cfg.Servers = map[string]RawConnection{}
	}
	return cfg, nil
}

// loadDefaultConfig returns the config from DefaultConfigFile when the file
// exists, nil when it does not, and an error only for unreadable or malformed
// files.
func loadDefaultConfig() (*Config, error) {
	if _, err := os.Stat(DefaultConfigFile); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadConfigFile(DefaultConfigFile)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Local store backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// DeviceConfig configures the device-side binaries: where the local store
// lives and which server, if any, workouts are synced to.
type DeviceConfig struct {
	ServerURL string `yaml:"server_url"`
	APIKey    string `yaml:"api_key"`
	UserID    string `yaml:"user_id"`
	StateDir  string `yaml:"state_dir"`
	Backend   string `yaml:"backend"`
}

// Online reports whether a server is configured.
func (d DeviceConfig) Online() bool { return d.ServerURL != "" }

// User returns the logged-in user, or nil for a guest.
func (d DeviceConfig) User() *string {
	if d.UserID == "" {
		return nil
	}
	u := d.UserID
	return &u
}

// LoadDevice reads the device config. A missing file is not an error: the
// defaults describe a guest with a SQLite store under the user config dir.
// Env overrides:
//
//	UTEGYM_SERVER_URL, UTEGYM_API_KEY, UTEGYM_USER_ID,
//	UTEGYM_STATE_DIR, UTEGYM_STORE_BACKEND
func LoadDevice(path string) (*DeviceConfig, error) {
	cfg := &DeviceConfig{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("reading device config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing device config: %w", err)
			}
		}
	}

	if v := os.Getenv("UTEGYM_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("UTEGYM_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("UTEGYM_USER_ID"); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv("UTEGYM_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("UTEGYM_STORE_BACKEND"); v != "" {
		cfg.Backend = v
	}

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	cfg.UserID = strings.TrimSpace(cfg.UserID)
	if cfg.Backend == "" {
		cfg.Backend = BackendSQLite
	}
	if cfg.StateDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolving state dir: %w", err)
		}
		cfg.StateDir = filepath.Join(dir, "utegym")
	}

	if cfg.Backend != BackendSQLite && cfg.Backend != BackendFile {
		return nil, fmt.Errorf("config validation: unknown store backend %q", cfg.Backend)
	}
	return cfg, nil
}

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the collection API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration, shared by the
// collection service daemon and the client modes.
type Config struct {
	// Listen is the HTTP listen address for the collection service.
	Listen string `yaml:"listen" json:"listen"`

	// BackendURL is the collection service endpoint client modes talk to.
	BackendURL string `yaml:"backend_url" json:"backend_url"`

	// Owner is the default owner identity for client modes. Sessions
	// without an owner fail closed.
	Owner string `yaml:"owner" json:"owner"`

	// Timezone is the IANA timezone used for "today" resolution in client
	// modes (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday begins the dashboard week strip.
	// Supported values:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule (e.g. "*/5 * * * *") for
	// reopening sessions stuck after a failed fetch or feed handshake.
	// Empty disables auto refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		BackendURL:  "http://127.0.0.1:8080",
		Timezone:    "Local",
		WeekStart:   "monday",
		RefreshCron: "*/5 * * * *",
		BasicAuth:   nil,
	}
}

// Normalize fills missing or invalid values with defaults so that
// partially-filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.BackendURL == "" {
		c.BackendURL = "http://" + c.Listen
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there
//     (0600, parent directory created) and returned.
//   - Otherwise the YAML is read, unmarshaled, and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg alongside the error so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration to path: parent directory 0700, atomic
// temp-file + rename, final permissions 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".pawplan-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

package customcss

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	DBPath string `yaml:"db_path"`

	// GroupSubdomains keys rules by registrable domain so docs.example.com
	// and www.example.com share one rule. Off by default: the exact host is
	// the key.
	GroupSubdomains bool `yaml:"group_subdomains"`

	// StatusTTL is how long editor status messages stay visible.
	StatusTTL time.Duration `yaml:"status_ttl"`

	Browser BrowserConfig `yaml:"browser"`
	Watch   WatchConfig   `yaml:"watch"`
}

// BrowserConfig controls the Chrome connection.
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an already-running Chrome.
	// Empty = launch a local one.
	RemoteURL   string        `yaml:"remote_url"`
	Headless    bool          `yaml:"headless"`
	Stealth     bool          `yaml:"stealth"`
	LoadTimeout time.Duration `yaml:"load_timeout"`
}

// WatchConfig controls detection of external edits to the rules database.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
	Debounce time.Duration `yaml:"debounce"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "customcss.db"
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = 3 * time.Second
	}
	if c.Browser.LoadTimeout <= 0 {
		c.Browser.LoadTimeout = 30 * time.Second
	}
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = 2 * time.Second
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = 500 * time.Millisecond
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

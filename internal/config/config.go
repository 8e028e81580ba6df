// Package config loads the console configuration from a YAML file, then
// lets environment variables and command-line flags override it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/hos-care/console/internal/client"
)

const appName = "hos-console"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Live    LiveConfig    `yaml:"live"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Token    string        `yaml:"token,omitempty"`
	User     string        `yaml:"user,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LiveConfig struct {
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	RecentLogs        int           `yaml:"recent_logs"`
}

// JournalConfig points at the local SQLite journal. An empty path
// disables it. Entries older than Retention are pruned at startup; zero
// keeps everything.
type JournalConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

type LogConfig struct {
	File string `yaml:"file"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://127.0.0.1:8000",
			Timeout: 10 * time.Second,
		},
		Live: LiveConfig{
			ReconnectDelay:    5 * time.Second,
			KeepAliveInterval: 30 * time.Second,
			RefreshInterval:   30 * time.Second,
			RecentLogs:        10,
		},
		Journal: JournalConfig{
			Retention: 30 * 24 * time.Hour,
		},
		Log: LogConfig{
			File: "hos-dashboard.log",
		},
	}
}

// Dir returns $XDG_CONFIG_HOME/hos-console, falling back to ~/.config.
func Dir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, appName), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Load reads path over the defaults. An empty path means the default
// location; a missing file is not an error and yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return errors.New("server.base_url is required")
	}
	if _, err := client.WebSocketURL(c.Server.BaseURL); err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if c.Live.ReconnectDelay <= 0 {
		return errors.New("live.reconnect_delay must be positive")
	}
	if c.Live.KeepAliveInterval <= 0 {
		return errors.New("live.keepalive_interval must be positive")
	}
	if c.Live.RecentLogs < 0 {
		return errors.New("live.recent_logs must not be negative")
	}
	if c.Journal.Retention < 0 {
		return errors.New("journal.retention must not be negative")
	}
	return nil
}

// ApplyEnv fills credentials from HOS_TOKEN, ADMIN_USER and ADMIN_PASS
// when they are set. getenv is normally os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("HOS_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := getenv("ADMIN_USER"); v != "" {
		c.Server.User = v
	}
	if v := getenv("ADMIN_PASS"); v != "" {
		c.Server.Password = v
	}
}

// Credentials returns the auth settings for the API client.
func (c *Config) Credentials() client.Credentials {
	return client.Credentials{
		Token:    c.Server.Token,
		User:     c.Server.User,
		Password: c.Server.Password,
	}
}

// HasAdmin reports whether admin endpoints can be called.
func (c *Config) HasAdmin() bool {
	return c.Server.Token != "" || (c.Server.User != "" && c.Server.Password != "")
}

// Flags holds the command-line overrides shared by every command.
type Flags struct {
	ConfigPath string

	flagSet *pflag.FlagSet
	baseURL string
	token   string
	user    string
	timeout time.Duration
}

// AddFlags registers --config, --url, --token, --user and --timeout.
func (f *Flags) AddFlags(flagSet *pflag.FlagSet) {
	f.flagSet = flagSet
	flagSet.StringVarP(&f.ConfigPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/hos-console/config.yml)")
	flagSet.StringVar(&f.baseURL, "url", "", "HOS API base URL")
	flagSet.StringVar(&f.token, "token", "", "bearer token (overrides HOS_TOKEN)")
	flagSet.StringVar(&f.user, "user", "", "admin user for basic auth (overrides ADMIN_USER)")
	flagSet.DurationVar(&f.timeout, "timeout", 0, "HTTP request timeout")
}

// Load reads the config file named by --config, applies the environment
// and then every flag the user actually set.
func (f *Flags) Load(getenv func(string) string) (*Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(getenv)
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *Flags) apply(cfg *Config) {
	if f.flagSet == nil {
		return
	}
	if f.flagSet.Changed("url") {
		cfg.Server.BaseURL = f.baseURL
	}
	if f.flagSet.Changed("token") {
		cfg.Server.Token = f.token
	}
	if f.flagSet.Changed("user") {
		cfg.Server.User = f.user
	}
	if f.flagSet.Changed("timeout") {
		cfg.Server.Timeout = f.timeout
	}
}

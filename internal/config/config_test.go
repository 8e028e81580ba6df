package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yml")

	yaml := `
server:
  base_url: "https://hos.example.jp"
  timeout: 3s
live:
  reconnect_delay: 2s
  refresh_interval: 1m
journal:
  path: /var/lib/hos/journal.db
  retention: 168h
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.BaseURL != "https://hos.example.jp" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v", cfg.Server.Timeout)
	}
	if cfg.Live.ReconnectDelay != 2*time.Second {
		t.Errorf("ReconnectDelay = %v", cfg.Live.ReconnectDelay)
	}
	if cfg.Live.RefreshInterval != time.Minute {
		t.Errorf("RefreshInterval = %v", cfg.Live.RefreshInterval)
	}
	// Unset keys keep their defaults.
	if cfg.Live.KeepAliveInterval != 30*time.Second {
		t.Errorf("KeepAliveInterval = %v, want default 30s", cfg.Live.KeepAliveInterval)
	}
	if cfg.Live.RecentLogs != 10 {
		t.Errorf("RecentLogs = %d, want default 10", cfg.Live.RecentLogs)
	}
	if cfg.Journal.Path != "/var/lib/hos/journal.db" {
		t.Errorf("Journal.Path = %q", cfg.Journal.Path)
	}
	if cfg.Journal.Retention != 7*24*time.Hour {
		t.Errorf("Journal.Retention = %v", cfg.Journal.Retention)
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Server.BaseURL != def.Server.BaseURL || cfg.Live != def.Live {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.Journal.Path != "" || cfg.Journal.Retention != 30*24*time.Hour {
		t.Errorf("journal defaults = %+v", cfg.Journal)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "server: [", "parse"},
		{"bad scheme", "server:\n  base_url: ftp://x\n", "base_url"},
		{"zero delay", "live:\n  reconnect_delay: 0s\n", "reconnect_delay"},
		{"negative logs", "live:\n  recent_logs: -1\n", "recent_logs"},
		{"negative retention", "journal:\n  retention: -1h\n", "retention"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yml")
			if err := os.WriteFile(path, []byte(tc.yaml), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestDefaultPathHonoursXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	got, err := Path()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join("/tmp/xdg", "hos-console", "config.yml"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	cfg := Default()
	cfg.Server.BaseURL = "http://10.0.0.5:8000"
	cfg.Live.RefreshInterval = 45 * time.Second
	cfg.Journal.Retention = 72 * time.Hour

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Server.BaseURL != cfg.Server.BaseURL || got.Live.RefreshInterval != 45*time.Second || got.Journal.Retention != 72*time.Hour {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestOverridePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	yaml := "server:\n  base_url: http://file:8000\n  token: from-file\n  user: file-user\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	env := map[string]string{
		"HOS_TOKEN":  "from-env",
		"ADMIN_USER": "env-user",
		"ADMIN_PASS": "env-pass",
	}

	var f Flags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.AddFlags(fs)
	if err := fs.Parse([]string{"--config", path, "--url", "http://flag:9000", "--timeout", "2s"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := f.Load(func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.BaseURL != "http://flag:9000" {
		t.Errorf("BaseURL = %q, flag should win", cfg.Server.BaseURL)
	}
	if cfg.Server.Token != "from-env" {
		t.Errorf("Token = %q, env should beat file", cfg.Server.Token)
	}
	if cfg.Server.User != "env-user" || cfg.Server.Password != "env-pass" {
		t.Errorf("basic creds = %q/%q", cfg.Server.User, cfg.Server.Password)
	}
	if cfg.Server.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v", cfg.Server.Timeout)
	}
	if !cfg.HasAdmin() {
		t.Error("HasAdmin should be true")
	}
	if c := cfg.Credentials(); c.Token != "from-env" {
		t.Errorf("Credentials().Token = %q", c.Token)
	}
}

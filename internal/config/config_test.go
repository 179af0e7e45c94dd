package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"offsync/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OFFSYNC_API_TOKEN", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "offsync")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "queue.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.API.Bind != "127.0.0.1:7590" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if !cfg.Sync.DeferDependents {
		t.Fatal("expected defer_dependents enabled by default")
	}
	if cfg.Sync.AutoRequeueMaxRetries != 0 {
		t.Fatalf("expected auto requeue disabled by default, got %d", cfg.Sync.AutoRequeueMaxRetries)
	}
	if cfg.Debounce() != 2*time.Second {
		t.Fatalf("unexpected debounce: %s", cfg.Debounce())
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestLoadCustomConfigFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OFFSYNC_REMOTE_TOKEN", "env-token")

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[paths]
data_dir = "~/queue"

[tenants]
active = [" acme ", "globex", "acme", ""]

[sync]
defer_dependents = false
max_parallel_tenants = 2

[remote]
base_url = "https://api.example.com/v1/"
entities = ["Partners", "invoices", " partners ", "invoices"]

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config file to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "queue") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if strings.Join(cfg.Tenants.Active, ",") != "acme,globex" {
		t.Fatalf("unexpected tenants: %v", cfg.Tenants.Active)
	}
	if cfg.Sync.DeferDependents {
		t.Fatal("expected defer_dependents disabled by file")
	}
	if cfg.Remote.BaseURL != "https://api.example.com/v1" {
		t.Fatalf("unexpected base url: %q", cfg.Remote.BaseURL)
	}
	if strings.Join(cfg.Remote.Entities, ",") != "Partners,invoices,partners" {
		t.Fatalf("unexpected entities: %v", cfg.Remote.Entities)
	}
	if cfg.Remote.Token != "env-token" {
		t.Fatalf("expected remote token from env, got %q", cfg.Remote.Token)
	}
	if cfg.Connectivity.ProbeURL != "https://api.example.com/v1" {
		t.Fatalf("expected probe url to fall back to remote base url, got %q", cfg.Connectivity.ProbeURL)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "probe interval",
			mutate:  func(c *config.Config) { c.Connectivity.ProbeInterval = 0 },
			wantErr: "connectivity.probe_interval must be positive",
		},
		{
			name:    "probe timeout exceeds interval",
			mutate:  func(c *config.Config) { c.Connectivity.ProbeTimeout = c.Connectivity.ProbeInterval + 1 },
			wantErr: "connectivity.probe_timeout must not exceed",
		},
		{
			name:    "parallel tenants",
			mutate:  func(c *config.Config) { c.Sync.MaxParallelTenants = 0 },
			wantErr: "sync.max_parallel_tenants must be positive",
		},
		{
			name:    "entities without base url",
			mutate:  func(c *config.Config) { c.Remote.Entities = []string{"partners"} },
			wantErr: "remote.base_url must be set",
		},
		{
			name:    "bad base url scheme",
			mutate:  func(c *config.Config) { c.Remote.BaseURL = "ftp://example.com" },
			wantErr: "unsupported scheme",
		},
		{
			name:    "ntfy topic",
			mutate:  func(c *config.Config) { c.Notifications.NtfyTopic = "ntfy.sh/offsync" },
			wantErr: "notifications.ntfy_topic",
		},
		{
			name:    "log level",
			mutate:  func(c *config.Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if decoded.API.Bind != config.Default().API.Bind {
		t.Fatalf("sample api bind %q differs from default", decoded.API.Bind)
	}

	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("Load(sample) failed: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", dir, err)
		}
	}
}

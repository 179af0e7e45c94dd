package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Tenants lists the tenants this client replays entries for.
type Tenants struct {
	Active []string `toml:"active"`
}

// Connectivity contains configuration for reachability probing.
type Connectivity struct {
	// ProbeURL is requested with HEAD to decide whether the remote store is reachable.
	ProbeURL string `toml:"probe_url"`
	// ProbeAddress is dialed over TCP when ProbeURL is empty.
	ProbeAddress   string `toml:"probe_address"`
	ProbeInterval  int    `toml:"probe_interval"`
	ProbeTimeout   int    `toml:"probe_timeout"`
	DebounceMillis int    `toml:"debounce_millis"`
	WatchNetlink   bool   `toml:"watch_netlink"`
}

// Sync contains configuration for replay passes.
type Sync struct {
	DeferDependents       bool `toml:"defer_dependents"`
	MaxParallelTenants    int  `toml:"max_parallel_tenants"`
	AutoRequeueMaxRetries int  `toml:"auto_requeue_max_retries"`
}

// Pending contains configuration for the backlog reporter.
type Pending struct {
	PollInterval int `toml:"poll_interval"`
}

// Retention contains configuration for purging synced entries.
type Retention struct {
	Enabled         bool `toml:"enabled"`
	Interval        int  `toml:"interval"`
	KeepSyncedHours int  `toml:"keep_synced_hours"`
}

// Remote contains configuration for the HTTP appliers.
type Remote struct {
	BaseURL  string   `toml:"base_url"`
	Token    string   `toml:"token"`
	Timeout  int      `toml:"timeout"`
	Entities []string `toml:"entities"`
}

// API contains configuration for the daemon HTTP API.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Notifications contains configuration for ntfy alerts.
type Notifications struct {
	NtfyTopic        string `toml:"ntfy_topic"`
	RequestTimeout   int    `toml:"request_timeout"`
	BacklogThreshold int    `toml:"backlog_threshold"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Config encapsulates all configuration values for offsync.
//
// Configuration sections by subsystem:
//   - Paths: queue database and log directories
//   - Tenants: tenants replayed by the daemon
//   - Connectivity: probe target, interval and debounce window
//   - Sync: replay policy
//   - Pending: backlog reporting interval
//   - Retention: purge cadence for synced entries
//   - Remote: HTTP appliers for the remote store
//   - API: daemon HTTP API bind address and token
//   - Notifications: ntfy alerts for failed passes and backlogs
//   - Logging: log format, level, and rotation
type Config struct {
	Paths         Paths         `toml:"paths"`
	Tenants       Tenants       `toml:"tenants"`
	Connectivity  Connectivity  `toml:"connectivity"`
	Sync          Sync          `toml:"sync"`
	Pending       Pending       `toml:"pending"`
	Retention     Retention     `toml:"retention"`
	Remote        Remote        `toml:"remote"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/offsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("offsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the local queue database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "offsyncd.lock")
}

// PIDPath returns the file the running daemon records its process id in.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "offsyncd.pid")
}

// LogFilePath returns the daemon log file path.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "offsyncd.log")
}

// ProbeInterval returns the connectivity probe cadence.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Connectivity.ProbeInterval) * time.Second
}

// ProbeTimeout returns the per-probe deadline.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Connectivity.ProbeTimeout) * time.Second
}

// Debounce returns how long connectivity must hold before a regained event fires.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Connectivity.DebounceMillis) * time.Millisecond
}

// PendingPollInterval returns the backlog reporting cadence.
func (c *Config) PendingPollInterval() time.Duration {
	return time.Duration(c.Pending.PollInterval) * time.Second
}

// RetentionInterval returns the purge cadence.
func (c *Config) RetentionInterval() time.Duration {
	return time.Duration(c.Retention.Interval) * time.Second
}

// KeepSynced returns how long synced entries are kept before purging.
func (c *Config) KeepSynced() time.Duration {
	return time.Duration(c.Retention.KeepSyncedHours) * time.Hour
}

// RemoteTimeout returns the HTTP client timeout used by remote appliers.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.Timeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

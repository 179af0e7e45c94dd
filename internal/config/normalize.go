package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTenants()
	c.normalizeRemote()
	c.normalizeConnectivity()
	c.normalizeAPI()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTenants() {
	if value, ok := os.LookupEnv("OFFSYNC_TENANTS"); ok && len(c.Tenants.Active) == 0 {
		c.Tenants.Active = strings.Split(value, ",")
	}
	c.Tenants.Active = dedupeTrimmed(c.Tenants.Active)
}

func (c *Config) normalizeConnectivity() {
	c.Connectivity.ProbeURL = strings.TrimSpace(c.Connectivity.ProbeURL)
	c.Connectivity.ProbeAddress = strings.TrimSpace(c.Connectivity.ProbeAddress)
	if c.Connectivity.ProbeURL == "" && c.Connectivity.ProbeAddress == "" {
		c.Connectivity.ProbeURL = c.Remote.BaseURL
	}
	if c.Connectivity.DebounceMillis < 0 {
		c.Connectivity.DebounceMillis = 0
	}
}

func (c *Config) normalizeRemote() {
	c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	if c.Remote.BaseURL == "" {
		if value, ok := os.LookupEnv("OFFSYNC_REMOTE_URL"); ok {
			c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Remote.Token = strings.TrimSpace(c.Remote.Token)
	if c.Remote.Token == "" {
		if value, ok := os.LookupEnv("OFFSYNC_REMOTE_TOKEN"); ok {
			c.Remote.Token = strings.TrimSpace(value)
		}
	}
	c.Remote.Entities = dedupeTrimmed(c.Remote.Entities)
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("OFFSYNC_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
}

func dedupeTrimmed(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

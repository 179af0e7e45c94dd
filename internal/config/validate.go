package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateIntervals(); err != nil {
		return err
	}
	if err := c.validateConnectivity(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateIntervals() error {
	if err := ensurePositiveMap(map[string]int{
		"connectivity.probe_interval": c.Connectivity.ProbeInterval,
		"connectivity.probe_timeout":  c.Connectivity.ProbeTimeout,
		"pending.poll_interval":       c.Pending.PollInterval,
		"remote.timeout":              c.Remote.Timeout,
	}); err != nil {
		return err
	}
	if c.Retention.Enabled && c.Retention.Interval <= 0 {
		return errors.New("retention.interval must be positive when retention.enabled is true")
	}
	if c.Retention.KeepSyncedHours < 0 {
		return errors.New("retention.keep_synced_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateConnectivity() error {
	if c.Connectivity.ProbeTimeout > c.Connectivity.ProbeInterval {
		return errors.New("connectivity.probe_timeout must not exceed connectivity.probe_interval")
	}
	if c.Connectivity.ProbeURL != "" {
		if err := validateHTTPURL(c.Connectivity.ProbeURL); err != nil {
			return fmt.Errorf("connectivity.probe_url: %w", err)
		}
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.MaxParallelTenants <= 0 {
		return errors.New("sync.max_parallel_tenants must be positive")
	}
	if c.Sync.AutoRequeueMaxRetries < 0 {
		return errors.New("sync.auto_requeue_max_retries must be >= 0")
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Remote.BaseURL == "" {
		if len(c.Remote.Entities) > 0 {
			return errors.New("remote.base_url must be set when remote.entities is not empty (or set OFFSYNC_REMOTE_URL)")
		}
		return nil
	}
	if err := validateHTTPURL(c.Remote.BaseURL); err != nil {
		return fmt.Errorf("remote.base_url: %w", err)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	if err := validateHTTPURL(c.Notifications.NtfyTopic); err != nil {
		return fmt.Errorf("notifications.ntfy_topic: %w", err)
	}
	if c.Notifications.BacklogThreshold < 0 {
		return errors.New("notifications.backlog_threshold must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB <= 0 {
		return errors.New("logging.max_size_mb must be positive")
	}
	return nil
}

func validateHTTPURL(value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return err
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

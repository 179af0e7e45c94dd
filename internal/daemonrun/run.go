package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"offsync/internal/config"
	"offsync/internal/daemon"
	"offsync/internal/logging"
	"offsync/internal/queue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the offsync daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logHub := logging.NewStreamHub(4096)
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logPath := cfg.LogFilePath()
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Rotation: logging.Rotation{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		},
		Stream: logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logConfigSnapshot(logger, cfg)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, logger, daemon.WithLogHub(logHub))
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, the lock file and queue database access"),
			logging.String(logging.FieldImpact, "queued entries will not replay"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("offsync daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	probe := "manual"
	switch {
	case strings.TrimSpace(cfg.Connectivity.ProbeURL) != "":
		probe = cfg.Connectivity.ProbeURL
	case strings.TrimSpace(cfg.Connectivity.ProbeAddress) != "":
		probe = "tcp://" + cfg.Connectivity.ProbeAddress
	}
	logger.Info("configuration snapshot",
		logging.EventType("config_snapshot"),
		logging.String("queue_db", cfg.DatabasePath()),
		logging.Any("tenants", cfg.Tenants.Active),
		logging.String("probe", probe),
		logging.Duration("debounce", cfg.Debounce()),
		logging.Bool("defer_dependents", cfg.Sync.DeferDependents),
		logging.Int("auto_requeue_max_retries", cfg.Sync.AutoRequeueMaxRetries),
		logging.Bool("retention_enabled", cfg.Retention.Enabled),
		logging.Bool("remote_configured", strings.TrimSpace(cfg.Remote.BaseURL) != ""),
		logging.Bool("remote_token_present", strings.TrimSpace(cfg.Remote.Token) != ""),
		logging.Any("remote_entities", cfg.Remote.Entities),
		logging.String("api_bind", cfg.API.Bind),
	)
}

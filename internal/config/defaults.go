package config

const (
	defaultDataDir               = "~/.local/share/offsync"
	defaultLogDir                = "~/.local/share/offsync/logs"
	defaultProbeInterval         = 15
	defaultProbeTimeout          = 5
	defaultDebounceMillis        = 2000
	defaultMaxParallelTenants    = 4
	defaultPendingPollInterval   = 10
	defaultRetentionInterval     = 3600
	defaultKeepSyncedHours       = 24
	defaultRemoteTimeout         = 30
	defaultAPIBind               = "127.0.0.1:7590"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogMaxSizeMB          = 20
	defaultLogMaxBackups         = 5
	defaultLogMaxAgeDays         = 30
	defaultAutoRequeueMaxRetries = 0
	defaultNotifyTimeout         = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Connectivity: Connectivity{
			ProbeInterval:  defaultProbeInterval,
			ProbeTimeout:   defaultProbeTimeout,
			DebounceMillis: defaultDebounceMillis,
			WatchNetlink:   true,
		},
		Sync: Sync{
			DeferDependents:       true,
			MaxParallelTenants:    defaultMaxParallelTenants,
			AutoRequeueMaxRetries: defaultAutoRequeueMaxRetries,
		},
		Pending: Pending{
			PollInterval: defaultPendingPollInterval,
		},
		Retention: Retention{
			Enabled:         true,
			Interval:        defaultRetentionInterval,
			KeepSyncedHours: defaultKeepSyncedHours,
		},
		Remote: Remote{
			Timeout: defaultRemoteTimeout,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}

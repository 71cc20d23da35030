package config

const (
	defaultLibraryDir           = "~/.local/share/beatline/library"
	defaultImportDir            = "~/.local/share/beatline/import"
	defaultLogDir               = "~/.local/share/beatline/logs"
	defaultOnlineCachePath      = "~/.cache/beatline/online_lookup.json"
	defaultOnlineBaseURL        = "https://osu.ppy.sh/api"
	defaultOnlineUserAgent      = "beatline/dev"
	defaultOnlineRequestsPerSec = 1
	defaultOnlineTimeoutSeconds = 15
	defaultOnlineQueueSize      = 256
	defaultWorkingBeatmaps      = 64
	defaultDifficultyEntries    = 1024
	defaultDifficultyTTLMinutes = 30
	defaultUpdaterWorkers       = 4
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultConfigPath           = "~/.config/beatline/config.toml"
	projectConfigName           = "beatline.toml"
	apiKeyEnv                   = "BEATLINE_API_KEY"
	maxOnlineRequestsPerSecond  = 60
	maxUpdaterWorkers           = 64
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			ImportDir:  defaultImportDir,
			LogDir:     defaultLogDir,
		},
		Online: Online{
			BaseURL:           defaultOnlineBaseURL,
			UserAgent:         defaultOnlineUserAgent,
			RequestsPerSecond: defaultOnlineRequestsPerSec,
			TimeoutSeconds:    defaultOnlineTimeoutSeconds,
			CachePath:         defaultOnlineCachePath,
			QueueSize:         defaultOnlineQueueSize,
		},
		Cache: Cache{
			WorkingBeatmaps:      defaultWorkingBeatmaps,
			DifficultyEntries:    defaultDifficultyEntries,
			DifficultyTTLMinutes: defaultDifficultyTTLMinutes,
		},
		Updater: Updater{
			Workers: defaultUpdaterWorkers,
		},
		Import: Import{
			RemoveProcessed: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

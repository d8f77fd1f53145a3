package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Filters: FiltersConfig{
			ViralMinStars:           500,
			ViralWindowDays:         30,
			GroundbreakerMinStars:   10,
			GroundbreakerMaxStars:   200,
			GroundbreakerWindowDays: 90,
		},
		Quality: QualityConfig{
			MinURLs: 3,
		},
		Sync: SyncConfig{
			ConflictPolicy: "latest_wins",
			TimeoutSeconds: 10,
		},
		Storage: StorageConfig{
			LocalDir:   ".scout",
			LocalFile:  "scout.db",
			GlobalDir:  "~/.scout",
			GlobalFile: "global.db",
		},
		Report: ReportConfig{
			RecentArchives: 5,
		},
		Logging: LoggingConfig{
			Level:       "info",
			File:        "",
			Development: false,
		},
	}
}

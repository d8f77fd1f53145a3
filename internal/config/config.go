package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.scout/config.yaml"

// Config holds all Scout configuration. It is resolved once at startup and
// passed down explicitly; components never read config files themselves.
type Config struct {
	Filters FiltersConfig `yaml:"filters"`
	Quality QualityConfig `yaml:"quality"`
	Sync    SyncConfig    `yaml:"sync"`
	Storage StorageConfig `yaml:"storage"`
	Report  ReportConfig  `yaml:"report"`
	Logging LoggingConfig `yaml:"logging"`
}

// FiltersConfig holds the star/recency thresholds used to build the viral
// and groundbreaker search queries for a new session topic.
type FiltersConfig struct {
	ViralMinStars           int `yaml:"viral_min_stars"`
	ViralWindowDays         int `yaml:"viral_window_days"`
	GroundbreakerMinStars   int `yaml:"groundbreaker_min_stars"`
	GroundbreakerMaxStars   int `yaml:"groundbreaker_max_stars"`
	GroundbreakerWindowDays int `yaml:"groundbreaker_window_days"`
}

// QualityConfig holds the advisory quality gates checked at archive time.
type QualityConfig struct {
	MinURLs int `yaml:"min_urls"`
}

type SyncConfig struct {
	ConflictPolicy string `yaml:"conflict_policy"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type StorageConfig struct {
	LocalDir   string `yaml:"local_dir"`
	LocalFile  string `yaml:"local_file"`
	GlobalDir  string `yaml:"global_dir"`
	GlobalFile string `yaml:"global_file"`
}

type ReportConfig struct {
	RecentArchives int `yaml:"recent_archives"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	Development bool   `yaml:"development"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks option ranges. Invalid values are rejected at startup
// rather than clamped.
func (c *Config) Validate() error {
	if c.Sync.ConflictPolicy != "latest_wins" {
		return fmt.Errorf("unsupported sync conflict policy %q (only latest_wins)", c.Sync.ConflictPolicy)
	}
	if c.Sync.TimeoutSeconds <= 0 {
		return fmt.Errorf("sync timeout must be positive, got %d", c.Sync.TimeoutSeconds)
	}
	if c.Quality.MinURLs < 0 {
		return fmt.Errorf("quality min_urls must be >= 0, got %d", c.Quality.MinURLs)
	}
	if c.Report.RecentArchives <= 0 {
		return fmt.Errorf("report recent_archives must be positive, got %d", c.Report.RecentArchives)
	}
	if c.Filters.GroundbreakerMinStars > c.Filters.GroundbreakerMaxStars {
		return fmt.Errorf("groundbreaker star range inverted: %d..%d",
			c.Filters.GroundbreakerMinStars, c.Filters.GroundbreakerMaxStars)
	}
	return nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := ExpandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}

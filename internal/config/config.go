// Package config loads crawler settings from defaults, an optional file,
// CRAWLER_* environment variables, and command-line flags.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// AppName names the XDG data directory.
const AppName = "sitecrawler"

// Storage backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendGCS    = "gcs"
)

// Config is the root configuration tree.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig bounds a crawl.
type CrawlerConfig struct {
	SeedURL     string        `mapstructure:"seed_url"`
	MaxThreads  int           `mapstructure:"max_threads"`
	MaxPages    int           `mapstructure:"max_pages"`
	PopTimeout  time.Duration `mapstructure:"pop_timeout"`
	ComparePort bool          `mapstructure:"compare_port"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// HTTPConfig controls the fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int `mapstructure:"max_body_bytes"`
}

// StorageConfig selects and configures the page persister.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	BaseDir    string `mapstructure:"base_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
	Prefix     string `mapstructure:"prefix"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig controls zap.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"seed":         "crawler.seed_url",
	"threads":      "crawler.max_threads",
	"max-pages":    "crawler.max_pages",
	"compare-port": "crawler.compare_port",
	"user-agent":   "crawler.user_agent",
	"timeout":      "http.timeout_seconds",
	"output":       "storage.base_dir",
	"backend":      "storage.backend",
	"sqlite-path":  "storage.sqlite_path",
	"bucket":       "storage.gcs_bucket",
	"serve":        "server.enabled",
	"port":         "server.port",
	"dev":          "logging.development",
	"log-level":    "logging.level",
}

// Load reads configuration. path may be empty. flags may be nil; any flag in
// it whose name appears in the flag table overrides file and environment
// values when set explicitly.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.seed_url", "")
	v.SetDefault("crawler.max_threads", 5)
	v.SetDefault("crawler.max_pages", 20)
	v.SetDefault("crawler.pop_timeout", time.Second)
	v.SetDefault("crawler.compare_port", true)
	v.SetDefault("crawler.user_agent", "sitecrawler/0.1")
	v.SetDefault("http.timeout_seconds", 5)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.base_dir", "pages")
	v.SetDefault("storage.sqlite_path", DefaultSQLitePath())
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// DefaultSQLitePath places the database under the XDG data directory.
func DefaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, AppName, "pages.db")
}

// Validate checks the loaded values. The seed is optional here so that
// configuration can be loaded before a seed is known.
func (c Config) Validate() error {
	if c.Crawler.MaxThreads <= 0 {
		return fmt.Errorf("%w: crawler.max_threads must be > 0", crawler.ErrInvalidConfig)
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("%w: crawler.max_pages must be > 0", crawler.ErrInvalidConfig)
	}
	if c.Crawler.PopTimeout <= 0 {
		return fmt.Errorf("%w: crawler.pop_timeout must be > 0", crawler.ErrInvalidConfig)
	}
	if c.Crawler.SeedURL != "" {
		if _, err := crawler.Normalize("", c.Crawler.SeedURL); err != nil {
			return fmt.Errorf("%w: crawler.seed_url: %w", crawler.ErrInvalidConfig, err)
		}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: http.timeout_seconds must be > 0", crawler.ErrInvalidConfig)
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("%w: storage.base_dir is required for the local backend", crawler.ErrInvalidConfig)
		}
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return fmt.Errorf("%w: storage.sqlite_path is required for the sqlite backend", crawler.ErrInvalidConfig)
		}
	case BackendGCS:
		if strings.TrimSpace(c.Storage.GCSBucket) == "" {
			return fmt.Errorf("%w: storage.gcs_bucket is required for the gcs backend", crawler.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", crawler.ErrInvalidConfig, c.Storage.Backend)
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("%w: server.port must be > 0 when the server is enabled", crawler.ErrInvalidConfig)
	}
	return nil
}

// HTTPTimeout returns the per-request fetch timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

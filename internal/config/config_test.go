package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Crawler.MaxThreads)
	require.Equal(t, 20, cfg.Crawler.MaxPages)
	require.Equal(t, time.Second, cfg.Crawler.PopTimeout)
	require.True(t, cfg.Crawler.ComparePort)
	require.Equal(t, 5*time.Second, cfg.HTTPTimeout())
	require.Equal(t, BackendLocal, cfg.Storage.Backend)
	require.Equal(t, "pages", cfg.Storage.BaseDir)
	require.Equal(t, DefaultSQLitePath(), cfg.Storage.SQLitePath)
	require.False(t, cfg.Server.Enabled)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
crawler:
  seed_url: https://example.com/start
  max_threads: 8
  max_pages: 250
  pop_timeout: 250ms
  compare_port: false
  user_agent: test-agent
http:
  timeout_seconds: 12
storage:
  backend: sqlite
  sqlite_path: /tmp/crawl.db
server:
  enabled: true
  port: 9090
logging:
  development: true
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/start", cfg.Crawler.SeedURL)
	require.Equal(t, 8, cfg.Crawler.MaxThreads)
	require.Equal(t, 250, cfg.Crawler.MaxPages)
	require.Equal(t, 250*time.Millisecond, cfg.Crawler.PopTimeout)
	require.False(t, cfg.Crawler.ComparePort)
	require.Equal(t, "test-agent", cfg.Crawler.UserAgent)
	require.Equal(t, 12*time.Second, cfg.HTTPTimeout())
	require.Equal(t, BackendSQLite, cfg.Storage.Backend)
	require.Equal(t, "/tmp/crawl.db", cfg.Storage.SQLitePath)
	require.True(t, cfg.Server.Enabled)
	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Logging.Development)
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  max_threads: 8\n  max_pages: 50\n"), 0o600))

	flags := pflag.NewFlagSet("crawl", pflag.ContinueOnError)
	flags.Int("threads", 5, "")
	flags.Int("max-pages", 20, "")
	flags.String("seed", "", "")
	flags.String("output", "pages", "")
	require.NoError(t, flags.Parse([]string{"--threads", "3", "--seed", "http://example.com", "--output", "out"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Crawler.MaxThreads)
	require.Equal(t, 50, cfg.Crawler.MaxPages, "unset flag must not override the file")
	require.Equal(t, "http://example.com", cfg.Crawler.SeedURL)
	require.Equal(t, "out", cfg.Storage.BaseDir)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRAWLER_CRAWLER_MAX_PAGES", "7")
	t.Setenv("CRAWLER_STORAGE_BACKEND", "memory")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Crawler.MaxPages)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threads", func(c *Config) { c.Crawler.MaxThreads = 0 }},
		{"zero pages", func(c *Config) { c.Crawler.MaxPages = 0 }},
		{"zero pop timeout", func(c *Config) { c.Crawler.PopTimeout = 0 }},
		{"bad seed scheme", func(c *Config) { c.Crawler.SeedURL = "ftp://example.com" }},
		{"zero http timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"local without dir", func(c *Config) { c.Storage.BaseDir = " " }},
		{"sqlite without path", func(c *Config) {
			c.Storage.Backend = BackendSQLite
			c.Storage.SQLitePath = ""
		}},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = BackendGCS }},
		{"server without port", func(c *Config) {
			c.Server.Enabled = true
			c.Server.Port = 0
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), crawler.ErrInvalidConfig)
		})
	}
}

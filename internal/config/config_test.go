package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvWithDefault(t *testing.T) {
	const key = "TEST_APP_PORT"

	// 环境变量未设置时，应该返回默认值
	_ = os.Unsetenv(key)
	assert.Equal(t, "9000", getEnv(key, "9000"))

	// 环境变量设置后，应优先返回环境变量
	t.Setenv(key, "8080")
	assert.Equal(t, "8080", getEnv(key, "9000"))
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, Default().Scraping.MaxRetries, cfg.Scraping.MaxRetries)
	assert.True(t, cfg.ContentFilter.Enabled)
	assert.Len(t, cfg.Sources.Reddit.Channels, 7)
}

func TestLoadFileRequiredMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), true)
	assert.Error(t, err)
}

func TestLoadFileOverridesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
keywords: ["linfoma", "leucemia"]
content_filter:
  enabled: true
  excluded_keywords: ["oroscopo", "celebrity"]
  required_keywords: ["cancer", "tumore"]
  log_filtered: false
  log_file: rejected.log
scraping:
  timeout: 7s
  max_retries: 4
  retry_base_delay: 250ms
  user_agent: test-agent
excluded_domains: ["youtube.com", "facebook.com"]
sources:
  reddit:
    limit: 500
    channels:
      - name: oncology
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := LoadFile(path, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"linfoma", "leucemia"}, cfg.Keywords)
	assert.Equal(t, []string{"oroscopo", "celebrity"}, cfg.ContentFilter.ExcludedKeywords)
	assert.False(t, cfg.ContentFilter.LogFiltered)
	assert.Equal(t, "rejected.log", cfg.ContentFilter.LogFile)
	assert.Equal(t, 7*time.Second, cfg.Scraping.Timeout)
	assert.Equal(t, 4, cfg.Scraping.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Scraping.RetryBaseDelay)
	assert.Equal(t, []string{"youtube.com", "facebook.com"}, cfg.ExcludedDomains)

	// limit 上限为 100，缺失的语言默认 it
	assert.Equal(t, 100, cfg.Sources.Reddit.Limit)
	require.Len(t, cfg.Sources.Reddit.Channels, 1)
	assert.Equal(t, "it", cfg.Sources.Reddit.Channels[0].Language)

	// 未出现在文件中的段保留默认值
	assert.Equal(t, "https://news.google.com/rss/search", cfg.Sources.GoogleNews.Endpoint)
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv("APP_PORT", "1234")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/news")
	t.Setenv("NEWSAPI_KEY", "secret")
	t.Setenv("SCRAPING_MAX_RETRIES", "5")

	// 切到空目录，避免读到仓库里的 config.yaml
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(wd) }()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "1234", cfg.Server.Port)
	assert.Equal(t, ":1234", cfg.Address())
	assert.Equal(t, "postgres://u:p@localhost:5432/news", cfg.Database.DSN)
	assert.Equal(t, "secret", cfg.Sources.NewsAPI.APIKey)
	assert.Equal(t, 5, cfg.Scraping.MaxRetries)
}

func TestNormalizeServerMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  mode: verbose\nscheduler:\n  startup_delay: 0s\n"), 0o644))

	cfg, err := LoadFile(path, true)
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, time.Duration(0), cfg.Scheduler.StartupDelay)
}

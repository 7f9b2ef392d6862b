package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "ONCONEWS_CONFIG"
	defaultConfigPath = "config.yaml"
)

type Config struct {
	Keywords        []string        `yaml:"keywords"`
	ContentFilter   FilterConfig    `yaml:"content_filter"`
	Scraping        ScrapingConfig  `yaml:"scraping"`
	ExcludedDomains []string        `yaml:"excluded_domains"`
	Sources         SourcesConfig   `yaml:"sources"`
	Database        DatabaseConfig  `yaml:"database"`
	Redis           RedisConfig     `yaml:"redis"`
	Server          ServerConfig    `yaml:"server"`
	Scheduler       SchedulerConfig `yaml:"scheduler"`
	Logging         LoggingConfig   `yaml:"logging"`
}

// FilterConfig 对应 content_filter 段：抓取正文之前的关键词过滤
type FilterConfig struct {
	Enabled          bool     `yaml:"enabled"`
	ExcludedKeywords []string `yaml:"excluded_keywords"`
	RequiredKeywords []string `yaml:"required_keywords"`
	LogFiltered      bool     `yaml:"log_filtered"`
	LogFile          string   `yaml:"log_file"`
}

type ScrapingConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	UserAgent      string        `yaml:"user_agent"`
	// Delay 是批量抓取时两篇文章之间的固定间隔
	Delay       time.Duration `yaml:"delay"`
	BatchSize   int           `yaml:"batch_size"`
	SnapshotDir string        `yaml:"snapshot_dir"`
}

type SourcesConfig struct {
	NewsAPI    NewsAPIConfig    `yaml:"newsapi"`
	GoogleNews GoogleNewsConfig `yaml:"google_news"`
	Reddit     RedditConfig     `yaml:"reddit"`
}

type NewsAPIConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Language string `yaml:"language"`
	PageSize int    `yaml:"page_size"`
}

type GoogleNewsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	Language   string `yaml:"language"`
	Country    string `yaml:"country"`
	WindowDays int    `yaml:"window_days"`
	MaxResults int    `yaml:"max_results"`
}

type RedditConfig struct {
	Enabled      bool            `yaml:"enabled"`
	BaseURL      string          `yaml:"base_url"`
	Channels     []ChannelConfig `yaml:"channels"`
	TimeFilter   string          `yaml:"time_filter"`
	Limit        int             `yaml:"limit"`
	RequestDelay time.Duration   `yaml:"request_delay"`
	ChannelDelay time.Duration   `yaml:"channel_delay"`
}

// ChannelConfig 描述一个 subreddit 及其语言标记
type ChannelConfig struct {
	Name     string `yaml:"name"`
	Language string `yaml:"language"`
}

type DatabaseConfig struct {
	// DSN 为空时使用本地 SQLite 文件
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"`
	// 同时配置用户名和密码时启用 Basic Auth，/health 免认证
	BasicAuthUser string `yaml:"basic_auth_user"`
	BasicAuthPass string `yaml:"basic_auth_pass"`
}

type SchedulerConfig struct {
	Cron string `yaml:"cron"`
	// StartupDelay 之后执行首轮采集，0 表示只按 cron 触发
	StartupDelay time.Duration `yaml:"startup_delay"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load 读取 ONCONEWS_CONFIG 指定的 YAML（默认 config.yaml），再用环境变量覆盖。
// 显式指定的配置文件读取或解析失败时返回错误；默认路径不存在时使用默认配置。
func Load() (*Config, error) {
	path := getEnv(configPathEnv, defaultConfigPath)
	cfg, err := LoadFile(path, os.Getenv(configPathEnv) != "")
	if err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadFile 以默认配置为底，叠加 path 中的 YAML。required 为 false 时文件缺失不算错误。
func LoadFile(path string, required bool) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Keywords: []string{"tumore", "cancro", "oncologia", "chemioterapia", "immunoterapia"},
		ContentFilter: FilterConfig{
			Enabled:     true,
			LogFiltered: true,
			LogFile:     "filtered_articles.log",
		},
		Scraping: ScrapingConfig{
			Timeout:        15 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Delay:          2 * time.Second,
			BatchSize:      100,
		},
		Sources: SourcesConfig{
			NewsAPI: NewsAPIConfig{
				Enabled:  true,
				Endpoint: "https://newsapi.org/v2/everything",
				Language: "it",
				PageSize: 100,
			},
			GoogleNews: GoogleNewsConfig{
				Enabled:    true,
				Endpoint:   "https://news.google.com/rss/search",
				Language:   "it",
				Country:    "IT",
				WindowDays: 7,
				MaxResults: 50,
			},
			Reddit: RedditConfig{
				Enabled:    true,
				BaseURL:    "https://www.reddit.com",
				TimeFilter: "week",
				Limit:      50,
				Channels: []ChannelConfig{
					{Name: "italy", Language: "it"},
					{Name: "ItalyInformatica", Language: "it"},
					{Name: "cancer", Language: "en"},
					{Name: "CancerFamilySupport", Language: "en"},
					{Name: "AskDocs", Language: "en"},
					{Name: "medicine", Language: "en"},
					{Name: "Health", Language: "en"},
				},
				RequestDelay: time.Second,
				ChannelDelay: 2 * time.Second,
			},
		},
		Redis:     RedisConfig{CacheTTL: 5 * time.Minute},
		Server:    ServerConfig{Port: "9000", Mode: "release"},
		Scheduler: SchedulerConfig{Cron: "0 */6 * * *", StartupDelay: 15 * time.Second},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
	}
}

func (c *Config) applyEnvOverrides() {
	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)
	c.Sources.NewsAPI.APIKey = getEnv("NEWSAPI_KEY", c.Sources.NewsAPI.APIKey)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Server.Port = getEnv("APP_PORT", c.Server.Port)
	c.Server.BasicAuthUser = getEnv("APP_BASIC_USER", c.Server.BasicAuthUser)
	c.Server.BasicAuthPass = getEnv("APP_BASIC_PASS", c.Server.BasicAuthPass)
	c.Scheduler.Cron = getEnv("CRON_SPEC", c.Scheduler.Cron)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	if v := os.Getenv("SCRAPING_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Scraping.MaxRetries = n
		}
	}
	c.normalize()
}

// normalize 修正 YAML 中缺失或越界的取值
func (c *Config) normalize() {
	if c.Scraping.MaxRetries <= 0 {
		c.Scraping.MaxRetries = 1
	}
	if c.Scraping.BatchSize <= 0 {
		c.Scraping.BatchSize = 100
	}
	if c.Sources.Reddit.Limit <= 0 || c.Sources.Reddit.Limit > 100 {
		c.Sources.Reddit.Limit = 100
	}
	if c.Sources.GoogleNews.WindowDays <= 0 {
		c.Sources.GoogleNews.WindowDays = 7
	}
	for i, ch := range c.Sources.Reddit.Channels {
		if strings.TrimSpace(ch.Language) == "" {
			c.Sources.Reddit.Channels[i].Language = "it"
		}
	}
	// gin 对未知模式会 panic
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		c.Server.Mode = "release"
	}
}

// Address 返回 gin 监听地址
func (c *Config) Address() string {
	if _, err := strconv.Atoi(c.Server.Port); err == nil {
		return ":" + c.Server.Port
	}
	return c.Server.Port
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

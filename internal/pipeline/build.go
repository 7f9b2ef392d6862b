package pipeline

import (
	"github.com/LJTian/onconews/internal/collector"
	"github.com/LJTian/onconews/internal/config"
	"github.com/LJTian/onconews/internal/filter"
	"github.com/LJTian/onconews/internal/logging"
	"github.com/LJTian/onconews/internal/processor"
	"github.com/LJTian/onconews/internal/scraper"
	"github.com/LJTian/onconews/internal/storage"
	"go.uber.org/zap"
)

// Fetchers 按配置启用数据源
func Fetchers(cfg *config.Config, logger *zap.Logger) []collector.Fetcher {
	logger = logging.OrNop(logger)
	var fs []collector.Fetcher
	if cfg.Sources.NewsAPI.Enabled {
		if cfg.Sources.NewsAPI.APIKey == "" {
			logger.Warn("newsapi enabled but NEWSAPI_KEY is empty, source disabled")
		} else {
			fs = append(fs, collector.NewNewsAPIFetcher(cfg.Sources.NewsAPI, logger))
		}
	}
	if cfg.Sources.GoogleNews.Enabled {
		fs = append(fs, collector.NewGoogleNewsFetcher(cfg.Sources.GoogleNews, logger))
	}
	if cfg.Sources.Reddit.Enabled && len(cfg.Sources.Reddit.Channels) > 0 {
		rf := collector.NewRedditFetcher(cfg.Sources.Reddit, logger)
		rf.UserAgent = cfg.Scraping.UserAgent
		fs = append(fs, rf)
	}
	return fs
}

// FromConfig 组装完整流水线。snapshots 可为 nil。
func FromConfig(cfg *config.Config, store storage.Store, snapshots scraper.Snapshotter, logger *zap.Logger) *Pipeline {
	logger = logging.OrNop(logger)
	return &Pipeline{
		Fetchers:    Fetchers(cfg, logger),
		Terms:       cfg.Keywords,
		Processor:   processor.NewSimpleProcessor(),
		Filter:      filter.New(cfg.ContentFilter, logger),
		Store:       store,
		Scraper:     scraper.New(cfg.Scraping, cfg.ExcludedDomains, snapshots, logger),
		ScrapeDelay: cfg.Scraping.Delay,
		BatchSize:   cfg.Scraping.BatchSize,
		Logger:      logger.Named("pipeline"),
	}
}

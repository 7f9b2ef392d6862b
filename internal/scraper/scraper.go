package scraper

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LJTian/onconews/internal/config"
	"github.com/LJTian/onconews/internal/logging"
	"github.com/LJTian/onconews/internal/retry"
	"go.uber.org/zap"
)

// shortTextRunes 以下时继续尝试后面的策略
const shortTextRunes = 3000

var (
	ErrExcludedDomain = errors.New("excluded domain")
	ErrNoText         = errors.New("no text extracted by any method")
)

// Result 是单个 URL 的抓取结果
type Result struct {
	Success bool
	Text    string
	// Method 是最终采用的策略名
	Method string
	Err    error
}

// Error 返回可写入存储的错误信息
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Target 是批量抓取的一项输入
type Target struct {
	URL   string
	Title string
}

// Scraper 按顺序执行各提取策略，并保留最长的正文
type Scraper struct {
	strategies []Strategy
	excluded   []string
	logger     *zap.Logger
}

// New 使用默认策略列表（readability，然后是启发式段落提取）
func New(cfg config.ScrapingConfig, excludedDomains []string, snapshots Snapshotter, logger *zap.Logger) *Scraper {
	logger = logging.OrNop(logger).Named("scraper")
	dl := &Downloader{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout, Snapshots: snapshots, Logger: logger}
	policy := retry.Policy{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		Logger:      logger,
	}
	return NewWithStrategies(excludedDomains, logger,
		&ReadabilityStrategy{Downloader: dl},
		&HeuristicStrategy{Downloader: dl, Retry: policy},
	)
}

func NewWithStrategies(excludedDomains []string, logger *zap.Logger, strategies ...Strategy) *Scraper {
	excluded := make([]string, 0, len(excludedDomains))
	for _, d := range excludedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			excluded = append(excluded, d)
		}
	}
	return &Scraper{
		strategies: strategies,
		excluded:   excluded,
		logger:     logging.OrNop(logger),
	}
}

// Scrape 提取 pageURL 的正文。排除域名不会发起任何请求。
// 第一个策略总会执行；之后的策略只在当前最佳结果不足 3000 字符时执行。
func (s *Scraper) Scrape(ctx context.Context, pageURL, titleHint string) Result {
	log := s.logger.With(zap.String("url", pageURL))

	if s.IsExcluded(pageURL) {
		log.Debug("skip excluded domain")
		return Result{Err: ErrExcludedDomain}
	}

	var best, method string
	for i, st := range s.strategies {
		if i > 0 && best != "" && utf8.RuneCountInString(best) >= shortTextRunes {
			break
		}
		text, err := st.Extract(ctx, pageURL)
		if err != nil {
			log.Debug("strategy failed", zap.String("strategy", st.Name()), zap.Error(err))
			continue
		}
		if text == "" {
			log.Debug("strategy produced no text", zap.String("strategy", st.Name()))
			continue
		}
		// 严格大于才替换，长度相同时保留先执行的策略
		if utf8.RuneCountInString(text) > utf8.RuneCountInString(best) {
			best, method = text, st.Name()
		}
	}

	if best == "" {
		log.Warn("no text extracted", zap.String("title", shorten(titleHint, 50)))
		return Result{Err: ErrNoText}
	}
	log.Info("scraped",
		zap.String("method", method),
		zap.Int("chars", utf8.RuneCountInString(best)),
		zap.String("title", shorten(titleHint, 50)))
	return Result{Success: true, Text: best, Method: method}
}

// ScrapeBatch 逐条抓取，两条之间固定间隔 delay。单条失败不影响其他条目。
// each 不为 nil 时每完成一条就回调一次。
func (s *Scraper) ScrapeBatch(ctx context.Context, targets []Target, delay time.Duration, each func(Target, Result)) map[string]Result {
	results := make(map[string]Result, len(targets))
	total := len(targets)
	s.logger.Info("batch scraping started", zap.Int("total", total))

	for i, t := range targets {
		if ctx.Err() != nil {
			break
		}
		res := s.Scrape(ctx, t.URL, t.Title)
		results[t.URL] = res
		if each != nil {
			each(t, res)
		}
		if i < total-1 && !sleep(ctx, delay) {
			break
		}
	}

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	s.logger.Info("batch scraping completed", zap.Int("successful", successful), zap.Int("total", total))
	return results
}

// IsExcluded 判断 URL 的主机名是否包含排除列表中的任一片段
func (s *Scraper) IsExcluded(pageURL string) bool {
	if len(s.excluded) == 0 {
		return false
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, d := range s.excluded {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func shorten(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}

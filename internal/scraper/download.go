package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/onconews/internal/logging"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxPageBytes     = 10 << 20 // 10MB
)

// Snapshotter 保存抓取到的原始 HTML，可选
type Snapshotter interface {
	Put(pageURL string, html []byte) error
}

// Downloader 用 colly 下载页面，带浏览器风格的请求头
type Downloader struct {
	UserAgent string
	Timeout   time.Duration
	Snapshots Snapshotter
	Logger    *zap.Logger
}

// Get 下载 pageURL 并返回响应体；非 2xx 状态视为失败
func (d *Downloader) Get(ctx context.Context, pageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ua := d.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := colly.NewCollector(
		colly.UserAgent(ua),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(maxPageBytes),
	)
	c.SetRequestTimeout(timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "it-IT,it;q=0.9,en-US;q=0.8,en;q=0.7")
	})

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("download %s: %w", pageURL, err)
	}
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}

	if d.Snapshots != nil {
		// 快照失败不影响抓取
		if err := d.Snapshots.Put(pageURL, body); err != nil {
			logging.OrNop(d.Logger).Warn("save snapshot failed", zap.String("url", pageURL), zap.Error(err))
		}
	}
	return body, nil
}

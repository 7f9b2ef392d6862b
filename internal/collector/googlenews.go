package collector

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/LJTian/onconews/internal/config"
	"github.com/LJTian/onconews/internal/logging"
	"github.com/mmcdole/gofeed/rss"
	"go.uber.org/zap"
)

const (
	googleNewsDefaultEndpoint = "https://news.google.com/rss/search"
	googleNewsFallbackSource  = "Google News"
)

// GoogleNewsFetcher 通过 Google News RSS 搜索接口获取新闻
type GoogleNewsFetcher struct {
	Endpoint   string
	Language   string
	Country    string
	WindowDays int
	// MaxResults 在调用方未指定数量时生效
	MaxResults int

	Client *http.Client
	Logger *zap.Logger
}

func NewGoogleNewsFetcher(cfg config.GoogleNewsConfig, logger *zap.Logger) *GoogleNewsFetcher {
	return &GoogleNewsFetcher{
		Endpoint:   cfg.Endpoint,
		Language:   cfg.Language,
		Country:    cfg.Country,
		WindowDays: cfg.WindowDays,
		MaxResults: cfg.MaxResults,
		Logger:     logging.OrNop(logger).Named("collector.googlenews"),
	}
}

func (g *GoogleNewsFetcher) Name() string {
	return "google_news"
}

func (g *GoogleNewsFetcher) Fetch(ctx context.Context, term string, maxResults int) []Candidate {
	log := logging.OrNop(g.Logger).With(zap.String("term", term))

	body, err := getBody(ctx, orDefaultClient(g.Client), g.searchURL(term), "")
	if err != nil {
		log.Error("google news request failed", zap.Error(err))
		return nil
	}

	// 使用 rss 专用解析器，才能拿到 <source url="..."> 元素
	feed, err := (&rss.Parser{}).Parse(bytes.NewReader(body))
	if err != nil {
		log.Error("google news bad feed", zap.Error(err))
		return nil
	}

	if maxResults <= 0 {
		maxResults = g.MaxResults
	}
	lang := g.language()
	out := make([]Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if maxResults > 0 && len(out) >= maxResults {
			break
		}
		c, ok := normalizeFeedItem(item, term, lang)
		if !ok {
			log.Debug("google news skip entry", zap.String("title", item.Title))
			continue
		}
		out = append(out, c)
	}
	out = dedupByURL(out)
	log.Info("google news fetched", zap.Int("count", len(out)))
	return out
}

func normalizeFeedItem(item *rss.Item, term, lang string) (Candidate, bool) {
	if item == nil {
		return Candidate{}, false
	}
	link := strings.TrimSpace(item.Link)
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return Candidate{}, false
	}

	source := googleNewsFallbackSource
	if item.Source != nil {
		if s := strings.TrimSpace(item.Source.Title); s != "" {
			source = s
		}
		link = unwrapGoogleLink(link, item.Source.URL)
	}

	c := Candidate{
		URL:            link,
		Title:          title,
		SourceName:     source,
		Author:         strings.TrimSpace(item.Author),
		Description:    strings.TrimSpace(item.Description),
		Language:       lang,
		MatchedKeyword: term,
	}
	if item.PubDateParsed != nil {
		t := item.PubDateParsed.UTC()
		c.PublishedAt = &t
	}
	return c, true
}

// unwrapGoogleLink 对 news.google.com 的跳转链接，改用条目中携带的来源地址。
// <source url> 通常只是媒体首页，只有带路径时才替换，否则同一媒体的文章会共用一个 URL 被去重掉。
func unwrapGoogleLink(link, sourceURL string) string {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return link
	}
	src, err := url.Parse(sourceURL)
	if err != nil || src.Host == "" || strings.Trim(src.Path, "/") == "" {
		return link
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if strings.HasSuffix(u.Hostname(), "news.google.com") && strings.Contains(u.Path, "/articles/") {
		return sourceURL
	}
	return link
}

func (g *GoogleNewsFetcher) searchURL(term string) string {
	endpoint := g.Endpoint
	if endpoint == "" {
		endpoint = googleNewsDefaultEndpoint
	}
	days := g.WindowDays
	if days <= 0 {
		days = 7
	}
	lang := g.language()
	country := g.Country
	if country == "" {
		country = strings.ToUpper(lang)
	}

	q := url.Values{}
	q.Set("q", fmt.Sprintf("%s when:%dd", term, days))
	q.Set("hl", lang)
	q.Set("gl", country)
	q.Set("ceid", country+":"+lang)
	return endpoint + "?" + q.Encode()
}

func (g *GoogleNewsFetcher) language() string {
	if g.Language == "" {
		return defaultLanguage
	}
	return g.Language
}

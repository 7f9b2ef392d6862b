package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/onconews/internal/config"
	"github.com/LJTian/onconews/internal/logging"
	"go.uber.org/zap"
)

const (
	newsAPIDefaultEndpoint = "https://newsapi.org/v2/everything"
	newsAPIMaxPageSize     = 100
)

// NewsAPIFetcher 通过 NewsAPI /v2/everything 搜索新闻
type NewsAPIFetcher struct {
	APIKey   string
	Endpoint string
	Language string
	PageSize int

	Client *http.Client
	Logger *zap.Logger
}

func NewNewsAPIFetcher(cfg config.NewsAPIConfig, logger *zap.Logger) *NewsAPIFetcher {
	return &NewsAPIFetcher{
		APIKey:   cfg.APIKey,
		Endpoint: cfg.Endpoint,
		Language: cfg.Language,
		PageSize: cfg.PageSize,
		Logger:   logging.OrNop(logger).Named("collector.newsapi"),
	}
}

func (n *NewsAPIFetcher) Name() string {
	return "newsapi"
}

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

func (n *NewsAPIFetcher) Fetch(ctx context.Context, term string, maxResults int) []Candidate {
	log := logging.OrNop(n.Logger).With(zap.String("term", term))
	if n.APIKey == "" {
		log.Warn("newsapi key not configured, skip")
		return nil
	}

	body, err := getBody(ctx, orDefaultClient(n.Client), n.searchURL(term, maxResults), "")
	if err != nil {
		log.Error("newsapi request failed", zap.Error(err))
		return nil
	}

	var resp newsAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Error("newsapi bad payload", zap.Error(err))
		return nil
	}
	if resp.Status != "ok" {
		log.Error("newsapi returned error", zap.String("code", resp.Code), zap.String("message", resp.Message))
		return nil
	}

	lang := n.Language
	if lang == "" {
		lang = defaultLanguage
	}

	out := make([]Candidate, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		c, ok := n.normalize(a, term, lang)
		if !ok {
			log.Debug("newsapi skip article", zap.String("url", a.URL), zap.String("title", a.Title))
			continue
		}
		out = append(out, c)
	}
	out = dedupByURL(out)
	log.Info("newsapi fetched", zap.Int("count", len(out)))
	return out
}

func (n *NewsAPIFetcher) normalize(a newsAPIArticle, term, lang string) (Candidate, bool) {
	link := strings.TrimSpace(a.URL)
	title := strings.TrimSpace(a.Title)
	// NewsAPI 对下架内容返回 "[Removed]" 占位
	if link == "" || title == "" || title == "[Removed]" {
		return Candidate{}, false
	}
	return Candidate{
		URL:            link,
		Title:          title,
		SourceName:     strings.TrimSpace(a.Source.Name),
		Author:         strings.TrimSpace(a.Author),
		PublishedAt:    parseTime(time.RFC3339, a.PublishedAt),
		Description:    strings.TrimSpace(a.Description),
		Language:       lang,
		MatchedKeyword: term,
	}, true
}

func (n *NewsAPIFetcher) searchURL(term string, maxResults int) string {
	endpoint := n.Endpoint
	if endpoint == "" {
		endpoint = newsAPIDefaultEndpoint
	}
	size := maxResults
	if size <= 0 {
		size = n.PageSize
	}
	if size <= 0 || size > newsAPIMaxPageSize {
		size = newsAPIMaxPageSize
	}
	lang := n.Language
	if lang == "" {
		lang = defaultLanguage
	}

	q := url.Values{}
	q.Set("q", term)
	q.Set("language", lang)
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", strconv.Itoa(size))
	q.Set("apiKey", n.APIKey)
	return endpoint + "?" + q.Encode()
}

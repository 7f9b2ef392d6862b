package collector

import (
	"context"
	"encoding/json"
	"fmt"
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
	redditBaseURL        = "https://www.reddit.com"
	redditMaxLimit       = 100
	redditExcerptRunes   = 200
	redditUserAgent      = "OncoNewsBot/1.0 (news research)"
	redditDefaultTimeWin = "week"
)

// RedditFetcher 在若干 subreddit 内搜索查询词。
// 同一频道内的请求间隔 RequestDelay，频道之间间隔 ChannelDelay。
type RedditFetcher struct {
	BaseURL      string
	Channels     []config.ChannelConfig
	TimeFilter   string
	Limit        int
	RequestDelay time.Duration
	ChannelDelay time.Duration
	UserAgent    string

	Client *http.Client
	Logger *zap.Logger
}

func NewRedditFetcher(cfg config.RedditConfig, logger *zap.Logger) *RedditFetcher {
	return &RedditFetcher{
		BaseURL:      cfg.BaseURL,
		Channels:     cfg.Channels,
		TimeFilter:   cfg.TimeFilter,
		Limit:        cfg.Limit,
		RequestDelay: cfg.RequestDelay,
		ChannelDelay: cfg.ChannelDelay,
		Logger:       logging.OrNop(logger).Named("collector.reddit"),
	}
}

func (r *RedditFetcher) Name() string {
	return "reddit"
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

// Fetch 在所有频道中搜索单个查询词
func (r *RedditFetcher) Fetch(ctx context.Context, term string, maxResults int) []Candidate {
	return r.FetchTerms(ctx, []string{term}, maxResults)
}

// FetchTerms 以频道为外层、查询词为内层逐一请求；某个频道失败不影响其他频道
func (r *RedditFetcher) FetchTerms(ctx context.Context, terms []string, maxResults int) []Candidate {
	log := logging.OrNop(r.Logger)
	client := orDefaultClient(r.Client)

	var out []Candidate
	for ci, ch := range r.Channels {
		if ci > 0 && !pause(ctx, r.ChannelDelay) {
			break
		}
		for ti, term := range terms {
			if ti > 0 && !pause(ctx, r.RequestDelay) {
				return dedupByURL(out)
			}
			items, err := r.searchChannel(ctx, client, ch, term, maxResults)
			if err != nil {
				log.Error("reddit search failed",
					zap.String("channel", ch.Name), zap.String("term", term), zap.Error(err))
				continue
			}
			out = append(out, items...)
		}
	}
	out = dedupByURL(out)
	log.Info("reddit fetched", zap.Int("count", len(out)), zap.Int("channels", len(r.Channels)))
	return out
}

func (r *RedditFetcher) searchChannel(ctx context.Context, client *http.Client, ch config.ChannelConfig, term string, maxResults int) ([]Candidate, error) {
	body, err := getBody(ctx, client, r.searchURL(ch.Name, term, maxResults), r.userAgent())
	if err != nil {
		return nil, err
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	lang := ch.Language
	if lang == "" {
		lang = defaultLanguage
	}
	items := make([]Candidate, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		c, ok := r.normalize(child.Data, ch.Name, term, lang)
		if !ok {
			logging.OrNop(r.Logger).Debug("reddit skip post", zap.String("channel", ch.Name), zap.String("title", child.Data.Title))
			continue
		}
		items = append(items, c)
	}
	return items, nil
}

func (r *RedditFetcher) normalize(p redditPost, channel, term, lang string) (Candidate, bool) {
	title := strings.TrimSpace(p.Title)
	permalink := strings.TrimSpace(p.Permalink)
	if title == "" || permalink == "" {
		return Candidate{}, false
	}

	c := Candidate{
		URL:            strings.TrimRight(r.baseURL(), "/") + permalink,
		Title:          title,
		SourceName:     "Reddit r/" + channel,
		Description:    redditDescription(p.Selftext, p.Score, p.NumComments),
		Language:       lang,
		MatchedKeyword: term,
		Extras: map[string]any{
			"reddit_score":    p.Score,
			"reddit_comments": p.NumComments,
		},
	}
	if a := strings.TrimSpace(p.Author); a != "" {
		c.Author = "u/" + a
	}
	if p.CreatedUTC > 0 {
		t := time.Unix(int64(p.CreatedUTC), 0).UTC()
		c.PublishedAt = &t
	}
	return c, true
}

// redditDescription 截取正文前 200 个字符，并附加互动数
func redditDescription(selftext string, score, comments int) string {
	stats := fmt.Sprintf("[%d upvotes, %d comments]", score, comments)
	text := strings.TrimSpace(selftext)
	if text == "" {
		return stats
	}
	rs := []rune(text)
	if len(rs) > redditExcerptRunes {
		text = string(rs[:redditExcerptRunes])
	}
	return text + "... " + stats
}

func (r *RedditFetcher) searchURL(channel, term string, maxResults int) string {
	limit := maxResults
	if limit <= 0 {
		limit = r.Limit
	}
	if limit <= 0 || limit > redditMaxLimit {
		limit = redditMaxLimit
	}
	window := r.TimeFilter
	if window == "" {
		window = redditDefaultTimeWin
	}

	q := url.Values{}
	q.Set("q", term)
	q.Set("restrict_sr", "true")
	q.Set("sort", "new")
	q.Set("t", window)
	q.Set("limit", strconv.Itoa(limit))
	return fmt.Sprintf("%s/r/%s/search.json?%s", strings.TrimRight(r.baseURL(), "/"), url.PathEscape(channel), q.Encode())
}

func (r *RedditFetcher) baseURL() string {
	if r.BaseURL == "" {
		return redditBaseURL
	}
	return r.BaseURL
}

func (r *RedditFetcher) userAgent() string {
	if r.UserAgent == "" {
		return redditUserAgent
	}
	return r.UserAgent
}

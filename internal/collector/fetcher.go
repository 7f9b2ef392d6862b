package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultLanguage      = "it"
	maxResponseBytes     = 4 << 20 // 4MB
	defaultClientTimeout = 15 * time.Second
	defaultUserAgent     = "OncoNewsBot/1.0"
)

// Candidate 是各数据源归一化后、尚未入库的一条新闻/讨论。
// 可选字段缺失时保持零值（PublishedAt 为 nil），不使用占位字符串。
type Candidate struct {
	URL            string
	Title          string
	SourceName     string
	Author         string
	PublishedAt    *time.Time
	Description    string
	Language       string
	MatchedKeyword string
	// Extras 携带数据源特有的字段（例如 reddit 的点赞数），下游不依赖
	Extras map[string]any
}

// Fetcher 抽象每一个数据源：按一个查询词返回归一化后的候选列表。
// 顶层请求失败时记录日志并返回空列表，单条解析失败只跳过该条。
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, term string, maxResults int) []Candidate
}

// termsFetcher 由需要自行安排多查询词请求顺序的数据源实现（例如按频道遍历的 reddit）
type termsFetcher interface {
	FetchTerms(ctx context.Context, terms []string, maxResults int) []Candidate
}

// FetchAll 逐个查询词调用 f，合并结果并按 URL 去重
func FetchAll(ctx context.Context, f Fetcher, terms []string, maxResults int) []Candidate {
	clean := make([]string, 0, len(terms))
	for _, term := range terms {
		if term = strings.TrimSpace(term); term != "" {
			clean = append(clean, term)
		}
	}
	if tf, ok := f.(termsFetcher); ok {
		return dedupByURL(tf.FetchTerms(ctx, clean, maxResults))
	}

	var all []Candidate
	for _, term := range clean {
		if ctx.Err() != nil {
			break
		}
		all = append(all, f.Fetch(ctx, term, maxResults)...)
	}
	return dedupByURL(all)
}

// MergeSources 合并多个数据源的结果，按 URL 去重，先出现的保留
func MergeSources(batches ...[]Candidate) []Candidate {
	var all []Candidate
	for _, b := range batches {
		all = append(all, b...)
	}
	return dedupByURL(all)
}

func dedupByURL(items []Candidate) []Candidate {
	out := make([]Candidate, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.URL == "" {
			continue
		}
		if _, ok := seen[it.URL]; ok {
			continue
		}
		seen[it.URL] = struct{}{}
		out = append(out, it)
	}
	return out
}

// getBody 发起 GET 请求并读取有限长度的响应体，非 2xx 视为失败
func getBody(ctx context.Context, client *http.Client, rawURL, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

// pause 是数据源之间的固定节流间隔；ctx 取消时提前返回 false
func pause(ctx context.Context, d time.Duration) bool {
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

func orDefaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultClientTimeout}
}

func parseTime(layout, value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return nil
	}
	return &t
}

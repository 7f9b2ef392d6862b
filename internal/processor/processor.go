package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/LJTian/onconews/internal/collector"
)

const defaultLanguage = "it"

// SimpleProcessor 在过滤之前做基础清洗：合法 UTF-8、去空白、按 URL 去重。
// 不截断标题和描述，过滤器需要看到完整文本。
type SimpleProcessor struct{}

func NewSimpleProcessor() *SimpleProcessor {
	return &SimpleProcessor{}
}

func (p *SimpleProcessor) Process(items []collector.Candidate) []collector.Candidate {
	out := make([]collector.Candidate, 0, len(items))
	seen := make(map[string]struct{})

	for _, it := range items {
		it.URL = normalizeURL(it.URL)
		if it.URL == "" {
			continue
		}
		id := hashURL(it.URL)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		it.Title = clean(it.Title)
		it.Description = clean(it.Description)
		it.SourceName = clean(it.SourceName)
		it.Author = clean(it.Author)
		if it.Title == "" {
			// 没有标题时用描述兜底，保证展示层总有内容
			it.Title = it.Description
		}
		if it.Language == "" {
			it.Language = defaultLanguage
		}
		out = append(out, it)
	}

	return out
}

// normalizeURL 去掉空白与片段（#...），片段不同的同一页面视为同一条
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func clean(s string) string {
	s = strings.ToValidUTF8(s, "�")
	return strings.Join(strings.Fields(s), " ")
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

package scraper

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/LJTian/onconews/internal/retry"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// minTextRunes 以下的提取结果视为没有正文
const minTextRunes = 100

// Strategy 是一种正文提取方式。返回空字符串表示没有提取到足够的文本。
type Strategy interface {
	Name() string
	Extract(ctx context.Context, pageURL string) (string, error)
}

// ReadabilityStrategy 下载页面后用 readability 做结构化正文提取，只尝试一次
type ReadabilityStrategy struct {
	Downloader *Downloader
}

func (s *ReadabilityStrategy) Name() string { return "readability" }

func (s *ReadabilityStrategy) Extract(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	body, err := s.Downloader.Get(ctx, pageURL)
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(article.TextContent)
	if utf8.RuneCountInString(text) <= minTextRunes {
		return "", nil
	}
	return text, nil
}

// HeuristicStrategy 下载原始 HTML，去掉噪声元素后取主体区域的段落文本。
// 下载按 Retry 策略重试，解析不重试。
type HeuristicStrategy struct {
	Downloader *Downloader
	Retry      retry.Policy
}

func (s *HeuristicStrategy) Name() string { return "heuristic" }

func (s *HeuristicStrategy) Extract(ctx context.Context, pageURL string) (string, error) {
	var body []byte
	err := s.Retry.Do(ctx, func() error {
		b, err := s.Downloader.Get(ctx, pageURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return "", err
	}
	return ExtractParagraphs(body)
}

var (
	noiseTags = "script, style, nav, footer, aside, header, iframe, noscript"

	// 类名包含这些片段的元素整体移除
	noiseClassParts = []string{
		"advertisement", "ads", "social-share", "comments",
		"related-articles", "sidebar", "menu",
	}

	// 没有 <article> 时依次尝试的正文容器类名
	contentClassParts = []string{
		"article-body", "article-content", "post-content",
		"entry-content", "content-body", "main-content",
	}
)

// ExtractParagraphs 从 HTML 中提取正文段落，段落之间以空行分隔
func ExtractParagraphs(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find(noiseTags).Remove()
	doc.Find("[class]").Each(func(_ int, sel *goquery.Selection) {
		if classContainsAny(sel, noiseClassParts) {
			sel.Remove()
		}
	})

	region := mainRegion(doc)
	if region.Length() == 0 {
		return "", nil
	}

	var paragraphs []string
	region.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := collapseSpaces(p.Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})

	text := strings.Join(paragraphs, "\n\n")
	if utf8.RuneCountInString(text) < minTextRunes {
		return "", nil
	}
	return text, nil
}

func mainRegion(doc *goquery.Document) *goquery.Selection {
	if article := doc.Find("article").First(); article.Length() > 0 {
		return article
	}
	for _, part := range contentClassParts {
		var found *goquery.Selection
		doc.Find("[class]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if classContainsAny(sel, []string{part}) {
				found = sel
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return doc.Find("body").First()
}

func classContainsAny(sel *goquery.Selection, parts []string) bool {
	class, ok := sel.Attr("class")
	if !ok || class == "" {
		return false
	}
	class = strings.ToLower(class)
	for _, p := range parts {
		if strings.Contains(class, p) {
			return true
		}
	}
	return false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

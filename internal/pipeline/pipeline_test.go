package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LJTian/onconews/internal/collector"
	"github.com/LJTian/onconews/internal/config"
	"github.com/LJTian/onconews/internal/filter"
	"github.com/LJTian/onconews/internal/processor"
	"github.com/LJTian/onconews/internal/scraper"
	"github.com/LJTian/onconews/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFetcher struct {
	name  string
	items []collector.Candidate
}

func (s *staticFetcher) Name() string { return s.name }

func (s *staticFetcher) Fetch(_ context.Context, term string, _ int) []collector.Candidate {
	out := make([]collector.Candidate, len(s.items))
	for i, it := range s.items {
		it.MatchedKeyword = term
		out[i] = it
	}
	return out
}

type textStrategy struct {
	texts map[string]string
}

func (t *textStrategy) Name() string { return "static" }

func (t *textStrategy) Extract(_ context.Context, pageURL string) (string, error) {
	if txt, ok := t.texts[pageURL]; ok {
		return txt, nil
	}
	return "", errors.New("404")
}

func newPipeline(t *testing.T) (*Pipeline, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "news.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	shared := "https://www.corriere.it/salute/linfoma"
	api := &staticFetcher{name: "newsapi", items: []collector.Candidate{
		{URL: shared, Title: "New trial for lymphoma treatment", Description: "cancer research", SourceName: "Corriere"},
		{URL: "https://gossip.it/1", Title: "Celebrity cancer rumours", SourceName: "Gossip"},
	}}
	rss := &staticFetcher{name: "google_news", items: []collector.Candidate{
		{URL: shared + "#top", Title: "Lymphoma trial", Description: "cancer", SourceName: "Google News"},
		{URL: "https://www.youtube.com/watch?v=1", Title: "Video on cancer care", SourceName: "YouTube"},
		{URL: "https://meteo.it/1", Title: "Previsioni meteo", SourceName: "Meteo"},
	}}

	p := &Pipeline{
		Fetchers:  []collector.Fetcher{api, rss},
		Terms:     []string{"cancer"},
		Processor: processor.NewSimpleProcessor(),
		Filter: filter.New(config.FilterConfig{
			Enabled:          true,
			ExcludedKeywords: []string{"celebrity"},
			RequiredKeywords: []string{"cancer"},
		}, nil),
		Store: store,
		Scraper: scraper.NewWithStrategies([]string{"youtube.com"}, nil, &textStrategy{texts: map[string]string{
			shared: strings.Repeat("Testo dell'articolo. ", 20),
		}}),
		BatchSize: 10,
	}
	return p, store
}

func TestCollectMergesFiltersAndInserts(t *testing.T) {
	p, store := newPipeline(t)
	ctx := context.Background()

	rep, err := p.Collect(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, map[string]int{"newsapi": 2, "google_news": 3}, rep.Fetched)
	// 同一 URL（片段不同）只保留一条
	assert.Equal(t, 4, rep.Merged)
	assert.Equal(t, 2, rep.Accepted)
	assert.Equal(t, 2, rep.Rejected)
	assert.Equal(t, 2, rep.Inserted)

	again, err := p.Collect(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Inserted)
	assert.Equal(t, 2, again.Duplicates)

	st, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Total)
	assert.EqualValues(t, 2, st.Pending)
}

func TestScrapeUpdatesStatuses(t *testing.T) {
	p, store := newPipeline(t)
	ctx := context.Background()

	_, err := p.Collect(ctx)
	require.NoError(t, err)

	rep, err := p.Scrape(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Attempted)
	assert.Equal(t, 1, rep.Completed)
	assert.Equal(t, 1, rep.Failed)

	st, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Completed)
	assert.EqualValues(t, 1, st.Failed)
	assert.EqualValues(t, 0, st.Pending)

	page, err := store.ListNews(ctx, storage.Query{Search: "video"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].ScrapingError)
	assert.Equal(t, "excluded domain", *page.Items[0].ScrapingError)

	// 没有待抓取条目时直接返回
	rep, err = p.Scrape(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, rep.Attempted)
}

func TestRun(t *testing.T) {
	p, _ := newPipeline(t)
	crep, srep, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, crep.Inserted)
	assert.Equal(t, 2, srep.Attempted)
}

func TestFetchersFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Sources.NewsAPI.APIKey = ""
	fs := Fetchers(cfg, nil)
	var names []string
	for _, f := range fs {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"google_news", "reddit"}, names)

	cfg.Sources.NewsAPI.APIKey = "k"
	cfg.Sources.Reddit.Enabled = false
	assert.Len(t, Fetchers(cfg, nil), 2)
}

func TestCollectRejectsExcludedKeywordInLongDescription(t *testing.T) {
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "news.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	desc := "cancer " + strings.Repeat("x", 1100) + " celebrity gossip"
	p := &Pipeline{
		Fetchers: []collector.Fetcher{&staticFetcher{name: "newsapi", items: []collector.Candidate{
			{URL: "https://gossip.it/long", Title: "Notizia", Description: desc, SourceName: "Gossip"},
		}}},
		Terms:     []string{"cancer"},
		Processor: processor.NewSimpleProcessor(),
		Filter: filter.New(config.FilterConfig{
			Enabled:          true,
			ExcludedKeywords: []string{"celebrity"},
			RequiredKeywords: []string{"cancer"},
		}, nil),
		Store: store,
	}

	rep, err := p.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Accepted)
	assert.Equal(t, 1, rep.Rejected)
	assert.Equal(t, 0, rep.Inserted)

	exists, err := store.Exists(context.Background(), "https://gossip.it/long")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCollectStoresFullDescription(t *testing.T) {
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "news.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	desc := "cancer " + strings.Repeat("y", 1500)
	p := &Pipeline{
		Fetchers: []collector.Fetcher{&staticFetcher{name: "newsapi", items: []collector.Candidate{
			{URL: "https://ansa.it/long", Title: "Studio", Description: desc, SourceName: "ANSA"},
		}}},
		Terms:     []string{"cancer"},
		Processor: processor.NewSimpleProcessor(),
		Store:     store,
	}

	rep, err := p.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.Inserted)

	page, err := store.ListNews(context.Background(), storage.Query{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].Description)
	assert.Equal(t, desc, *page.Items[0].Description)
}

func TestRedditUsesScrapingUserAgent(t *testing.T) {
	cfg := config.Default()
	cfg.Scraping.UserAgent = "OncoNewsTest/2.0"
	for _, f := range Fetchers(cfg, nil) {
		if r, ok := f.(*collector.RedditFetcher); ok {
			assert.Equal(t, "OncoNewsTest/2.0", r.UserAgent)
			return
		}
	}
	t.Fatal("reddit fetcher not configured")
}

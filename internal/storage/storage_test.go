package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/LJTian/onconews/internal/collector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "news.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ts(day int) *time.Time {
	t := time.Date(2024, 5, day, 10, 0, 0, 0, time.UTC)
	return &t
}

func candidate(url, title, source string, published *time.Time) collector.Candidate {
	return collector.Candidate{
		URL:            url,
		Title:          title,
		SourceName:     source,
		PublishedAt:    published,
		Description:    "descrizione di " + title,
		MatchedKeyword: "tumore",
	}
}

func TestInsertEnforcesUniqueURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Insert(ctx, candidate("https://a.it/1", "Primo", "ANSA", ts(1)))
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := s.Exists(ctx, "https://a.it/1")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := candidate("https://a.it/1", "Titolo diverso", "Altro", ts(2))
	ok, err = s.Insert(ctx, dup)
	require.NoError(t, err)
	assert.False(t, ok)

	page, err := s.ListNews(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Primo", page.Items[0].Title, "existing row left unmodified")
	assert.Equal(t, StatusPending, page.Items[0].ScrapingStatus)
	assert.Nil(t, page.Items[0].FullText)
	assert.False(t, page.Items[0].FetchedAt.IsZero())
}

func TestInsertConflictWithoutExistsCheck(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, candidate("https://a.it/race", "Race", "ANSA", nil))
	require.NoError(t, err)

	// 模拟另一个进程在 Exists 之后抢先插入：直接走 Create 路径
	row := newsFromCandidate(candidate("https://a.it/race", "Race 2", "ANSA", nil), time.Now())
	err = s.db.Create(&row).Error
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestInsertKeepsOptionalFieldsAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := collector.Candidate{
		URL:    "https://reddit.com/r/cancer/1",
		Title:  "Post",
		Extras: map[string]any{"reddit_score": 12},
	}
	ok, err := s.Insert(ctx, c)
	require.NoError(t, err)
	require.True(t, ok)

	page, err := s.ListNews(ctx, Query{})
	require.NoError(t, err)
	n := page.Items[0]
	assert.Nil(t, n.Author)
	assert.Nil(t, n.PublishedAt)
	assert.Nil(t, n.Description)
	assert.Equal(t, "it", n.Language)
	assert.EqualValues(t, 12, n.ExtraData["reddit_score"])
}

func TestPendingBatchAndStatusLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, c := range []collector.Candidate{
		candidate("https://a.it/old", "Vecchio", "ANSA", ts(1)),
		candidate("https://a.it/new", "Nuovo", "ANSA", ts(20)),
		candidate("https://a.it/none", "Senza data", "Corriere", nil),
		candidate("https://a.it/mid", "Medio", "Corriere", ts(10)),
	} {
		ok, err := s.Insert(ctx, c)
		require.NoError(t, err, i)
		require.True(t, ok)
	}

	batch, err := s.PendingBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 4)
	assert.Equal(t, []string{"https://a.it/new", "https://a.it/mid", "https://a.it/old", "https://a.it/none"},
		[]string{batch[0].URL, batch[1].URL, batch[2].URL, batch[3].URL})
	assert.Equal(t, "Nuovo", batch[0].Title)
	assert.Equal(t, "ANSA", batch[0].SourceName)
	assert.NotZero(t, batch[0].ID)

	limited, err := s.PendingBatch(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, s.UpdateText(ctx, "https://a.it/new", "testo completo"))
	require.NoError(t, s.UpdateError(ctx, "https://a.it/mid", "no text extracted by any method"))

	batch, err = s.PendingBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	for _, b := range batch {
		assert.NotEqual(t, "https://a.it/new", b.URL)
		assert.NotEqual(t, "https://a.it/mid", b.URL)
	}

	// 终态不会再被改写
	require.NoError(t, s.UpdateError(ctx, "https://a.it/new", "late failure"))
	exported, err := s.ExportCompleted(ctx)
	require.NoError(t, err)
	require.Len(t, exported, 1)
	require.NotNil(t, exported[0].FullText)
	assert.Equal(t, "testo completo", *exported[0].FullText)
	assert.Equal(t, StatusCompleted, exported[0].ScrapingStatus)
	assert.Nil(t, exported[0].ScrapingError)

	failed, err := s.GetByID(ctx, mustID(t, s, "https://a.it/mid"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.ScrapingStatus)
	assert.Nil(t, failed.FullText)
	require.NotNil(t, failed.ScrapingError)

	// 运维重置后重新进入待抓取队列
	require.NoError(t, s.ResetScraping(ctx, "https://a.it/mid"))
	batch, err = s.PendingBatch(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, batch, 3)
	assert.ErrorIs(t, s.ResetScraping(ctx, "https://missing"), ErrNotFound)
}

func TestFetchedAtImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, candidate("https://a.it/1", "Primo", "ANSA", ts(1)))
	require.NoError(t, err)

	id := mustID(t, s, "https://a.it/1")
	before, err := s.GetByID(ctx, id)
	require.NoError(t, err)

	require.NoError(t, s.db.Model(&News{}).Where("id = ?", id).
		Updates(News{FetchedAt: time.Now().Add(24 * time.Hour), Title: "Modificato"}).Error)

	after, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Modificato", after.Title)
	assert.True(t, before.FetchedAt.Equal(after.FetchedAt))
}

func TestStatisticsAndSources(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inputs := []collector.Candidate{
		candidate("https://a.it/1", "A1", "ANSA", ts(1)),
		candidate("https://a.it/2", "A2", "ANSA", ts(2)),
		candidate("https://a.it/3", "A3", "ANSA", ts(3)),
		candidate("https://c.it/1", "C1", "Corriere", ts(4)),
		candidate("https://r.it/1", "R1", "Reddit r/cancer", ts(5)),
	}
	for _, c := range inputs {
		_, err := s.Insert(ctx, c)
		require.NoError(t, err)
	}
	require.NoError(t, s.UpdateText(ctx, "https://a.it/1", "x"))
	require.NoError(t, s.UpdateError(ctx, "https://c.it/1", "excluded domain"))

	st, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, st.Total)
	assert.EqualValues(t, 1, st.Completed)
	assert.EqualValues(t, 3, st.Pending)
	assert.EqualValues(t, 1, st.Failed)
	require.Len(t, st.TopSources, 3)
	assert.Equal(t, SourceCount{SourceName: "ANSA", Count: 3}, st.TopSources[0])

	sources, err := s.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ANSA", "Corriere", "Reddit r/cancer"}, sources)
}

func TestListNewsSearchSourceAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 25; i++ {
		c := candidate("https://a.it/"+string(rune('a'+i)), "Notizia generica", "ANSA", ts(i))
		if i%5 == 0 {
			c.Title = "Nuova cura per il Linfoma"
			c.SourceName = "Corriere"
		}
		_, err := s.Insert(ctx, c)
		require.NoError(t, err)
	}

	page, err := s.ListNews(ctx, Query{})
	require.NoError(t, err)
	assert.EqualValues(t, 25, page.Total)
	assert.Len(t, page.Items, 20)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 25, page.Items[0].PublishedAt.Day())

	page2, err := s.ListNews(ctx, Query{Page: 2})
	require.NoError(t, err)
	assert.Len(t, page2.Items, 5)

	found, err := s.ListNews(ctx, Query{Search: "linfoma"})
	require.NoError(t, err)
	assert.EqualValues(t, 5, found.Total)

	// 描述中同样可以匹配
	found, err = s.ListNews(ctx, Query{Search: "descrizione di nuova"})
	require.NoError(t, err)
	assert.EqualValues(t, 5, found.Total)

	bySource, err := s.ListNews(ctx, Query{Source: "Corriere", Search: "cura"})
	require.NoError(t, err)
	assert.EqualValues(t, 5, bySource.Total)

	none, err := s.ListNews(ctx, Query{Search: "100%"})
	require.NoError(t, err)
	assert.Zero(t, none.Total)
}

func TestGetByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenSelectsBackend(t *testing.T) {
	assert.True(t, IsPostgresDSN("postgres://u:p@localhost/db"))
	assert.True(t, IsPostgresDSN("postgresql://localhost/db"))
	assert.True(t, IsPostgresDSN("host=localhost user=news dbname=news sslmode=disable"))
	assert.False(t, IsPostgresDSN(""))
	assert.False(t, IsPostgresDSN("data/onconews.db"))

	s, err := Open(filepath.Join(t.TempDir(), "sub", "news.db"), nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "sqlite", s.Backend())

	// 重复初始化是幂等的
	sq := s.(*SQLiteStore)
	require.NoError(t, sq.migrate())
	for _, idx := range []string{"idx_published_at", "idx_source_name", "idx_scraping_status"} {
		assert.True(t, sq.db.Migrator().HasIndex(&News{}, idx), idx)
	}
}

func mustID(t *testing.T, s *SQLiteStore, url string) uint {
	t.Helper()
	var n News
	require.NoError(t, s.db.Where("url = ?", url).First(&n).Error)
	return n.ID
}

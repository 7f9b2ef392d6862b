package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/onconews/internal/collector"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("article not found")

// Reader 是展示层使用的只读接口
type Reader interface {
	Statistics(ctx context.Context) (Statistics, error)
	ListNews(ctx context.Context, q Query) (Page, error)
	Sources(ctx context.Context) ([]string, error)
	GetByID(ctx context.Context, id uint) (News, error)
	ExportCompleted(ctx context.Context) ([]News, error)
}

// Store 负责持久化、URL 唯一性以及抓取状态流转。SQLite 与 PostgreSQL 两种实现语义一致。
type Store interface {
	Reader

	Exists(ctx context.Context, url string) (bool, error)
	// Insert 返回 false 表示 URL 已存在（包括并发插入触发唯一约束的情况）
	Insert(ctx context.Context, c collector.Candidate) (bool, error)
	// UpdateText 把 pending 的条目标记为 completed 并写入正文
	UpdateText(ctx context.Context, url, text string) error
	// UpdateError 把 pending 的条目标记为 failed 并记录错误
	UpdateError(ctx context.Context, url, message string) error
	PendingBatch(ctx context.Context, limit int) ([]PendingArticle, error)
	// ResetScraping 是运维操作：把终态条目重新置为 pending
	ResetScraping(ctx context.Context, url string) error

	Backend() string
	Close() error
}

// gormStore 是两种后端共享的实现，差异只在方言相关的查询片段
type gormStore struct {
	db      *gorm.DB
	backend string
	// likeOp 是大小写不敏感的子串匹配操作符
	likeOp string
	logger *zap.Logger
}

// migrate 幂等地建表并创建三个二级索引
func (s *gormStore) migrate() error {
	if err := s.db.AutoMigrate(&News{}); err != nil {
		return fmt.Errorf("migrate news: %w", err)
	}
	return nil
}

func (s *gormStore) Backend() string {
	return s.backend
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *gormStore) Exists(ctx context.Context, url string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&News{}).Where("url = ?", url).Count(&n).Error; err != nil {
		return false, fmt.Errorf("exists %s: %w", url, err)
	}
	return n > 0, nil
}

func (s *gormStore) Insert(ctx context.Context, c collector.Candidate) (bool, error) {
	exists, err := s.Exists(ctx, c.URL)
	if err != nil {
		return false, err
	}
	if exists {
		s.logger.Debug("article already exists", zap.String("url", c.URL))
		return false, nil
	}

	row := newsFromCandidate(c, time.Now().UTC())
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "url"}}, DoNothing: true}).
		Create(&row)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		s.logger.Debug("duplicate article on insert", zap.String("url", c.URL))
		return false, nil
	}
	if res.Error != nil {
		return false, fmt.Errorf("insert %s: %w", c.URL, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	s.logger.Info("article inserted", zap.String("title", shorten(row.Title, 50)))
	return true, nil
}

func (s *gormStore) UpdateText(ctx context.Context, url, text string) error {
	res := s.db.WithContext(ctx).Model(&News{}).
		Where("url = ? AND scraping_status = ?", url, StatusPending).
		Updates(map[string]any{
			"full_text":       text,
			"scraping_status": StatusCompleted,
			"scraping_error":  nil,
		})
	return s.reportUpdate("update text", url, res)
}

func (s *gormStore) UpdateError(ctx context.Context, url, message string) error {
	res := s.db.WithContext(ctx).Model(&News{}).
		Where("url = ? AND scraping_status = ?", url, StatusPending).
		Updates(map[string]any{
			"full_text":       nil,
			"scraping_status": StatusFailed,
			"scraping_error":  message,
		})
	return s.reportUpdate("update error", url, res)
}

func (s *gormStore) ResetScraping(ctx context.Context, url string) error {
	res := s.db.WithContext(ctx).Model(&News{}).
		Where("url = ?", url).
		Updates(map[string]any{
			"full_text":       nil,
			"scraping_status": StatusPending,
			"scraping_error":  nil,
		})
	if res.Error != nil {
		return fmt.Errorf("reset %s: %w", url, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// reportUpdate 写失败只记日志，同时把错误返回给关心的调用方
func (s *gormStore) reportUpdate(op, url string, res *gorm.DB) error {
	if res.Error != nil {
		s.logger.Error(op+" failed", zap.String("url", url), zap.Error(res.Error))
		return fmt.Errorf("%s %s: %w", op, url, res.Error)
	}
	if res.RowsAffected == 0 {
		s.logger.Debug(op+" skipped, no pending row", zap.String("url", url))
	}
	return nil
}

func (s *gormStore) PendingBatch(ctx context.Context, limit int) ([]PendingArticle, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []PendingArticle
	err := s.newestFirst(s.db.WithContext(ctx).Model(&News{})).
		Select("id", "url", "title", "source_name").
		Where("scraping_status = ?", StatusPending).
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("pending batch: %w", err)
	}
	return out, nil
}

func (s *gormStore) Statistics(ctx context.Context) (Statistics, error) {
	db := s.db.WithContext(ctx)
	var st Statistics

	type statusCount struct {
		ScrapingStatus string
		Count          int64
	}
	var counts []statusCount
	if err := db.Model(&News{}).
		Select("scraping_status, COUNT(*) AS count").
		Group("scraping_status").
		Scan(&counts).Error; err != nil {
		return st, fmt.Errorf("statistics: %w", err)
	}
	for _, c := range counts {
		st.Total += c.Count
		switch c.ScrapingStatus {
		case StatusCompleted:
			st.Completed = c.Count
		case StatusPending:
			st.Pending = c.Count
		case StatusFailed:
			st.Failed = c.Count
		}
	}

	if err := db.Model(&News{}).
		Select("source_name, COUNT(*) AS count").
		Group("source_name").
		Order("count DESC").Order("source_name").
		Limit(10).
		Scan(&st.TopSources).Error; err != nil {
		return st, fmt.Errorf("top sources: %w", err)
	}
	return st, nil
}

func (s *gormStore) ExportCompleted(ctx context.Context) ([]News, error) {
	var out []News
	err := s.newestFirst(s.db.WithContext(ctx)).
		Where("scraping_status = ? AND full_text IS NOT NULL", StatusCompleted).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("export completed: %w", err)
	}
	return out, nil
}

func (s *gormStore) ListNews(ctx context.Context, q Query) (Page, error) {
	q = q.normalized()
	db := s.db.WithContext(ctx).Model(&News{})

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		db = db.Where(fmt.Sprintf("(title %[1]s ? ESCAPE '\\' OR description %[1]s ? ESCAPE '\\')", s.likeOp), pattern, pattern)
	}
	if src := strings.TrimSpace(q.Source); src != "" {
		db = db.Where("source_name = ?", src)
	}

	// Session 让 Count 与 Find 各自从同一组条件开始
	db = db.Session(&gorm.Session{})

	page := Page{Page: q.Page, PageSize: q.PageSize}
	if err := db.Count(&page.Total).Error; err != nil {
		return page, fmt.Errorf("count news: %w", err)
	}
	if err := s.newestFirst(db).
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&page.Items).Error; err != nil {
		return page, fmt.Errorf("list news: %w", err)
	}
	page.TotalPages = int((page.Total + int64(q.PageSize) - 1) / int64(q.PageSize))
	return page, nil
}

func (s *gormStore) Sources(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&News{}).
		Distinct("source_name").
		Where("source_name <> ''").
		Order("source_name").
		Pluck("source_name", &out).Error
	if err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}
	return out, nil
}

func (s *gormStore) GetByID(ctx context.Context, id uint) (News, error) {
	var n News
	err := s.db.WithContext(ctx).First(&n, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return n, ErrNotFound
	}
	if err != nil {
		return n, fmt.Errorf("get news %d: %w", id, err)
	}
	return n, nil
}

// newestFirst 按发布时间倒序，缺少发布时间的排在最后，两种后端结果一致
func (s *gormStore) newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("published_at IS NULL").Order("published_at DESC").Order("id DESC")
}

func newsFromCandidate(c collector.Candidate, now time.Time) News {
	lang := c.Language
	if lang == "" {
		lang = "it"
	}
	n := News{
		URL:             c.URL,
		Title:           toValidUTF8(c.Title),
		SourceName:      toValidUTF8(c.SourceName),
		Author:          optional(c.Author),
		Description:     optional(c.Description),
		KeywordsMatched: c.MatchedKeyword,
		FetchedAt:       now,
		ScrapingStatus:  StatusPending,
		Language:        lang,
	}
	if c.PublishedAt != nil {
		t := c.PublishedAt.UTC()
		n.PublishedAt = &t
	}
	if len(c.Extras) > 0 {
		n.ExtraData = datatypes.JSONMap(c.Extras)
	}
	return n
}

func optional(s string) *string {
	s = toValidUTF8(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	return &s
}

// toValidUTF8 避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func shorten(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}

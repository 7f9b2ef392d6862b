package storage

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// News 是入库后的文章。FullText 仅在 completed 状态下非空，FetchedAt 只在创建时写入。
type News struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	URL             string            `gorm:"type:text;not null;uniqueIndex:idx_news_url" json:"url"`
	Title           string            `gorm:"type:text;not null" json:"title"`
	SourceName      string            `gorm:"type:text;index:idx_source_name" json:"sourceName"`
	Author          *string           `gorm:"type:text" json:"author,omitempty"`
	PublishedAt     *time.Time        `gorm:"index:idx_published_at,sort:desc" json:"publishedAt,omitempty"`
	Description     *string           `gorm:"type:text" json:"description,omitempty"`
	FullText        *string           `gorm:"type:text" json:"fullText,omitempty"`
	KeywordsMatched string            `gorm:"type:text" json:"keywordsMatched"`
	FetchedAt       time.Time         `gorm:"not null;<-:create" json:"fetchedAt"`
	ScrapingStatus  string            `gorm:"type:text;not null;default:pending;index:idx_scraping_status" json:"scrapingStatus"`
	ScrapingError   *string           `gorm:"type:text" json:"scrapingError,omitempty"`
	Language        string            `gorm:"type:text;default:it" json:"language"`
	ExtraData       datatypes.JSONMap `json:"extraData,omitempty"`
}

func (News) TableName() string {
	return "news"
}

// PendingArticle 是待抓取正文的条目
type PendingArticle struct {
	ID         uint   `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	SourceName string `json:"sourceName"`
}

type SourceCount struct {
	SourceName string `json:"sourceName"`
	Count      int64  `json:"count"`
}

type Statistics struct {
	Total      int64         `json:"total"`
	Completed  int64         `json:"completed"`
	Pending    int64         `json:"pending"`
	Failed     int64         `json:"failed"`
	TopSources []SourceCount `json:"topSources"`
}

// Query 是只读列表的筛选条件
type Query struct {
	Search   string
	Source   string
	Page     int
	PageSize int
}

type Page struct {
	Items      []News `json:"items"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalPages int    `json:"totalPages"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (q Query) normalized() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	return q
}

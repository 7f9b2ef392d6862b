package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/LJTian/onconews/internal/logging"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const DefaultSQLitePath = "onconews.db"

// SQLiteStore 是嵌入式单文件后端
type SQLiteStore struct {
	*gormStore
	path string
}

func NewSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// SQLite 只允许一个写连接，串行化避免 database is locked
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	s := &SQLiteStore{
		gormStore: &gormStore{
			db:      db,
			backend: "sqlite",
			likeOp:  "LIKE",
			logger:  logging.OrNop(logger).Named("storage.sqlite"),
		},
		path: path,
	}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	s.logger.Info("database initialised", zap.String("backend", "sqlite"), zap.String("path", path))
	return s, nil
}

func (s *SQLiteStore) Path() string {
	return s.path
}

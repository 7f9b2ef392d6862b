package storage

import (
	"fmt"
	"time"

	"github.com/LJTian/onconews/internal/logging"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	pgMaxOpenConns    = 10
	pgMaxIdleConns    = 5
	pgConnMaxLifetime = 30 * time.Minute
)

// PostgresStore 是客户端/服务端后端
type PostgresStore struct {
	*gormStore
}

func NewPostgres(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(pgMaxOpenConns)
	sqlDB.SetMaxIdleConns(pgMaxIdleConns)
	sqlDB.SetConnMaxLifetime(pgConnMaxLifetime)

	s := &PostgresStore{gormStore: &gormStore{
		db:      db,
		backend: "postgres",
		likeOp:  "ILIKE",
		logger:  logging.OrNop(logger).Named("storage.postgres"),
	}}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	s.logger.Info("database initialised", zap.String("backend", "postgres"))
	return s, nil
}

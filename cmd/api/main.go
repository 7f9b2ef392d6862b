package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/onconews/internal/api"
	"github.com/LJTian/onconews/internal/archive"
	"github.com/LJTian/onconews/internal/config"
	"github.com/LJTian/onconews/internal/logging"
	"github.com/LJTian/onconews/internal/pipeline"
	"github.com/LJTian/onconews/internal/scheduler"
	"github.com/LJTian/onconews/internal/scraper"
	"github.com/LJTian/onconews/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer logger.Sync()

	// 后端在启动时选定一次，之后只通过 Store 接口访问
	store, err := storage.Open(cfg.Database.DSN, logger)
	if err != nil {
		logger.Fatal("init store failed", zap.Error(err))
	}
	defer store.Close()

	var snapshots scraper.Snapshotter
	if cfg.Scraping.SnapshotDir != "" {
		arc, err := archive.Open(cfg.Scraping.SnapshotDir)
		if err != nil {
			logger.Fatal("open snapshot archive failed", zap.Error(err))
		}
		defer arc.Close()
		snapshots = arc
	}

	p := pipeline.FromConfig(cfg, store, snapshots, logger)
	s, err := scheduler.New(cfg.Scheduler.Cron, p, logger)
	if err != nil {
		logger.Fatal("init scheduler failed", zap.Error(err))
	}
	s.StartupDelay = cfg.Scheduler.StartupDelay
	s.Start()
	defer s.Stop()

	// 读接口走 redis 缓存；未配置 redis 时直接读库
	var reader storage.Reader = store
	if rdb := storage.NewRedisClient(cfg.Redis.Addr, logger); rdb != nil {
		defer rdb.Close()
		reader = storage.NewCachedReader(store, rdb, cfg.Redis.CacheTTL, logger)
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	// 若配置了访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.Server.BasicAuthUser != "" && cfg.Server.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.Server.BasicAuthUser, cfg.Server.BasicAuthPass))
	}
	api.NewServer(reader, p.Filter.Stats(), logger).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", zap.String("addr", srv.Addr), zap.String("backend", store.Backend()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exit", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	l := logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

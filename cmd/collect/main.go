package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/LJTian/onconews/internal/archive"
	"github.com/LJTian/onconews/internal/config"
	"github.com/LJTian/onconews/internal/logging"
	"github.com/LJTian/onconews/internal/pipeline"
	"github.com/LJTian/onconews/internal/scraper"
	"github.com/LJTian/onconews/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	dsnFlag    string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "collect",
	Short:         "onconews - oncology news acquisition pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath, true)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if dsnFlag != "" {
			cfg.Database.DSN = dsnFlag
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
}

// app 持有一次命令执行所需的资源
type app struct {
	store    storage.Store
	archive  *archive.Archive
	pipeline *pipeline.Pipeline
}

// openApp 打开存储；withArchive 为 true 且配置了 snapshot_dir 时一并打开快照归档
func openApp(withArchive bool) (*app, error) {
	store, err := storage.Open(cfg.Database.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{store: store}

	var snapshots scraper.Snapshotter
	if withArchive && cfg.Scraping.SnapshotDir != "" {
		a.archive, err = archive.Open(cfg.Scraping.SnapshotDir)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		snapshots = a.archive
	}
	a.pipeline = pipeline.FromConfig(cfg, store, snapshots, logger)
	return a, nil
}

func (a *app) Close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			logger.Warn("close archive failed", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("close store failed", zap.Error(err))
	}
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default: $ONCONEWS_CONFIG or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "Database DSN, overrides DATABASE_URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd, fetchCmd, scrapeCmd, statsCmd, exportCmd, initDBCmd, snapshotCmd, rescrapeCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

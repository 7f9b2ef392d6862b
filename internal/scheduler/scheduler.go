package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/LJTian/onconews/internal/logging"
	"github.com/LJTian/onconews/internal/pipeline"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner 是一次完整的采集 + 抓取
type Runner interface {
	Run(ctx context.Context) (pipeline.CollectReport, pipeline.ScrapeReport, error)
}

type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger *zap.Logger

	// StartupDelay 后执行首轮任务，为 0 时 Start 不触发首轮
	StartupDelay time.Duration
	// RunTimeout 限制单轮任务的总时长
	RunTimeout time.Duration

	mu sync.Mutex
	// stateMu 保证 Stop 之后不会再有新任务登记到 running
	stateMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

func New(spec string, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	logger = logging.OrNop(logger).Named("scheduler")
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{logger}),
		// 上一轮还没结束时跳过本次触发
		cron.SkipIfStillRunning(cronLogger{logger}),
	))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:       c,
		runner:     runner,
		logger:     logger,
		RunTimeout: 2 * time.Hour,
		ctx:        ctx,
		cancel:     cancel,
	}

	if _, err := c.AddFunc(spec, s.runOnce); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if s.StartupDelay > 0 {
		// 延迟执行首轮，避免与服务启动争抢资源
		time.AfterFunc(s.StartupDelay, func() {
			go s.runOnce()
		})
	}
}

// Stop 停止触发新任务，取消正在执行的任务并等待其退出
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.stateMu.Lock()
	s.cancel()
	s.stateMu.Unlock()
	s.running.Wait()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	// 手动触发与 cron 触发共用一把锁，保证同一时间只有一轮
	if !s.mu.TryLock() {
		s.logger.Info("previous run still in progress, skip")
		return
	}
	defer s.mu.Unlock()

	s.stateMu.Lock()
	if s.ctx.Err() != nil {
		s.stateMu.Unlock()
		return
	}
	s.running.Add(1)
	s.stateMu.Unlock()
	defer s.running.Done()

	ctx := s.ctx
	if s.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.Info("scheduled run started")
	crep, srep, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled run done",
		zap.Duration("took", time.Since(start)),
		zap.Int("inserted", crep.Inserted),
		zap.Int("scraped", srep.Completed),
		zap.Int("scrape_failed", srep.Failed))
}

// cronLogger 让 cron 的内部日志走 zap
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/LJTian/onconews/internal/collector"
	"github.com/LJTian/onconews/internal/filter"
	"github.com/LJTian/onconews/internal/logging"
	"github.com/LJTian/onconews/internal/processor"
	"github.com/LJTian/onconews/internal/scraper"
	"github.com/LJTian/onconews/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline 串联采集、过滤、入库与正文抓取
type Pipeline struct {
	Fetchers    []collector.Fetcher
	Terms       []string
	MaxResults  int
	Processor   *processor.SimpleProcessor
	Filter      *filter.Filter
	Store       storage.Store
	Scraper     *scraper.Scraper
	ScrapeDelay time.Duration
	BatchSize   int
	Logger      *zap.Logger
}

// CollectReport 汇总一次采集的结果
type CollectReport struct {
	RunID        string         `json:"runId"`
	Fetched      map[string]int `json:"fetched"`
	Merged       int            `json:"merged"`
	Accepted     int            `json:"accepted"`
	Rejected     int            `json:"rejected"`
	Inserted     int            `json:"inserted"`
	Duplicates   int            `json:"duplicates"`
	InsertErrors int            `json:"insertErrors"`
}

type ScrapeReport struct {
	RunID     string `json:"runId"`
	Attempted int    `json:"attempted"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// FetchSources 并发调用各数据源（彼此独立，目标主机不同），按数据源顺序返回结果
func (p *Pipeline) FetchSources(ctx context.Context) ([][]collector.Candidate, map[string]int) {
	log := logging.OrNop(p.Logger)
	batches := make([][]collector.Candidate, len(p.Fetchers))

	var wg sync.WaitGroup
	for i, f := range p.Fetchers {
		wg.Add(1)
		go func(i int, f collector.Fetcher) {
			defer wg.Done()
			log.Info("fetch from source", zap.String("source", f.Name()))
			batches[i] = collector.FetchAll(ctx, f, p.Terms, p.MaxResults)
		}(i, f)
	}
	wg.Wait()

	counts := make(map[string]int, len(p.Fetchers))
	for i, f := range p.Fetchers {
		counts[f.Name()] = len(batches[i])
	}
	return batches, counts
}

// Collect 采集所有数据源 → 跨源去重 → 清洗 → 过滤 → 入库
func (p *Pipeline) Collect(ctx context.Context) (CollectReport, error) {
	rep := CollectReport{RunID: uuid.NewString()}
	log := logging.OrNop(p.Logger).With(zap.String("run", rep.RunID))
	log.Info("collect job started", zap.Int("sources", len(p.Fetchers)), zap.Int("terms", len(p.Terms)))

	batches, counts := p.FetchSources(ctx)
	rep.Fetched = counts
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	merged := collector.MergeSources(batches...)
	if p.Processor != nil {
		merged = p.Processor.Process(merged)
	}
	rep.Merged = len(merged)

	accepted := merged
	if p.Filter != nil {
		res := p.Filter.FilterAll(merged)
		accepted = res.Accepted
		rep.Rejected = len(res.Rejected)
	}
	rep.Accepted = len(accepted)

	for _, c := range accepted {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		ok, err := p.Store.Insert(ctx, c)
		switch {
		case err != nil:
			rep.InsertErrors++
			log.Error("insert failed", zap.String("url", c.URL), zap.Error(err))
		case ok:
			rep.Inserted++
		default:
			rep.Duplicates++
		}
	}

	log.Info("collect job done",
		zap.Int("merged", rep.Merged),
		zap.Int("accepted", rep.Accepted),
		zap.Int("rejected", rep.Rejected),
		zap.Int("inserted", rep.Inserted),
		zap.Int("duplicates", rep.Duplicates))
	return rep, nil
}

// Scrape 取出最多 limit 条待抓取的文章，逐条抓取正文并回写状态
func (p *Pipeline) Scrape(ctx context.Context, limit int) (ScrapeReport, error) {
	rep := ScrapeReport{RunID: uuid.NewString()}
	log := logging.OrNop(p.Logger).With(zap.String("run", rep.RunID))
	if limit <= 0 {
		limit = p.BatchSize
	}

	pending, err := p.Store.PendingBatch(ctx, limit)
	if err != nil {
		return rep, err
	}
	if len(pending) == 0 {
		log.Info("no pending articles")
		return rep, nil
	}

	targets := make([]scraper.Target, 0, len(pending))
	for _, a := range pending {
		targets = append(targets, scraper.Target{URL: a.URL, Title: a.Title})
	}

	p.Scraper.ScrapeBatch(ctx, targets, p.ScrapeDelay, func(t scraper.Target, res scraper.Result) {
		rep.Attempted++
		if res.Success {
			if err := p.Store.UpdateText(ctx, t.URL, res.Text); err == nil {
				rep.Completed++
			}
			return
		}
		if err := p.Store.UpdateError(ctx, t.URL, res.Error()); err == nil {
			rep.Failed++
		}
	})

	log.Info("scrape job done",
		zap.Int("attempted", rep.Attempted),
		zap.Int("completed", rep.Completed),
		zap.Int("failed", rep.Failed))
	return rep, ctx.Err()
}

// Run 先采集再抓取正文
func (p *Pipeline) Run(ctx context.Context) (CollectReport, ScrapeReport, error) {
	crep, err := p.Collect(ctx)
	if err != nil {
		return crep, ScrapeReport{}, err
	}
	srep, err := p.Scrape(ctx, p.BatchSize)
	return crep, srep, err
}

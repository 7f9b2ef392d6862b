package filter

import (
	"strings"

	"github.com/LJTian/onconews/internal/collector"
	"github.com/LJTian/onconews/internal/config"
	"github.com/LJTian/onconews/internal/logging"
	"go.uber.org/zap"
)

// ReasonNoRequired 是配置了必需关键词但一个都没命中时的拒绝原因
const ReasonNoRequired = "no required keyword found"

// Filter 在抓取正文和入库之前做词法过滤。关键词统一转小写后按子串匹配。
type Filter struct {
	enabled     bool
	excluded    []string
	required    []string
	logFiltered bool
	logFile     string
	logger      *zap.Logger
}

// Rejected 记录被拒绝的候选及原因
type Rejected struct {
	Candidate collector.Candidate
	Reason    string
}

// Result 是一次批量过滤的结果。AuditErr 非空表示审计日志写入失败，过滤结果不受影响。
type Result struct {
	Accepted []collector.Candidate
	Rejected []Rejected
	AuditErr error
}

// Stats 描述当前过滤配置
type Stats struct {
	Enabled          bool   `json:"enabled"`
	ExcludedKeywords int    `json:"excludedKeywords"`
	RequiredKeywords int    `json:"requiredKeywords"`
	LogFiltered      bool   `json:"logFiltered"`
	LogFile          string `json:"logFile,omitempty"`
}

func New(cfg config.FilterConfig, logger *zap.Logger) *Filter {
	return &Filter{
		enabled:     cfg.Enabled,
		excluded:    lowerAll(cfg.ExcludedKeywords),
		required:    lowerAll(cfg.RequiredKeywords),
		logFiltered: cfg.LogFiltered,
		logFile:     cfg.LogFile,
		logger:      logging.OrNop(logger).Named("filter"),
	}
}

// Accept 判断单个候选是否通过；排除词优先，命中即拒绝
func (f *Filter) Accept(c collector.Candidate) (bool, string) {
	if !f.enabled {
		return true, ""
	}
	text := strings.ToLower(c.Title + " " + c.Description)

	for _, kw := range f.excluded {
		if strings.Contains(text, kw) {
			return false, kw
		}
	}

	if len(f.required) > 0 {
		for _, kw := range f.required {
			if strings.Contains(text, kw) {
				return true, ""
			}
		}
		return false, ReasonNoRequired
	}
	return true, ""
}

// FilterAll 批量过滤，并把被拒绝的条目追加写入审计日志（尽力而为）
func (f *Filter) FilterAll(items []collector.Candidate) Result {
	var res Result
	for _, c := range items {
		ok, reason := f.Accept(c)
		if ok {
			res.Accepted = append(res.Accepted, c)
			continue
		}
		res.Rejected = append(res.Rejected, Rejected{Candidate: c, Reason: reason})
	}

	if f.logFiltered && len(res.Rejected) > 0 {
		if err := appendAudit(f.logFile, res.Rejected); err != nil {
			res.AuditErr = err
			f.logger.Warn("write filter audit log failed", zap.String("file", f.logFile), zap.Error(err))
		}
	}

	f.logger.Info("content filter done",
		zap.Int("total", len(items)),
		zap.Int("accepted", len(res.Accepted)),
		zap.Int("rejected", len(res.Rejected)))
	return res
}

func (f *Filter) Stats() Stats {
	return Stats{
		Enabled:          f.enabled,
		ExcludedKeywords: len(f.excluded),
		RequiredKeywords: len(f.required),
		LogFiltered:      f.logFiltered,
		LogFile:          f.logFile,
	}
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Policy 描述一次外部调用的重试方式：最多 MaxAttempts 次，
// 第 n 次失败后等待 BaseDelay * 2^(n-1)。
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay 为 0 时不限制单次等待
	MaxDelay time.Duration
	Logger   *zap.Logger
}

func New(maxAttempts int, baseDelay time.Duration, logger *zap.Logger) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, Logger: logger}
}

// Do 执行 fn 直到成功、重试次数用尽或 ctx 取消。用尽后返回最后一次的错误。
// fn 返回 Permanent 包装的错误时立即停止。
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	op := func() error {
		attempt++
		return fn()
	}

	notify := func(err error, wait time.Duration) {
		if p.Logger != nil {
			p.Logger.Debug("retrying after failure",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Duration("wait", wait),
				zap.Error(err))
		}
	}

	return backoff.RetryNotify(op, p.backOff(ctx, attempts), notify)
}

// Delays 返回各次重试前的等待时间，便于日志与测试
func (p Policy) Delays() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	b := p.exponential()
	b.Reset()
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	for i := 1; i < p.MaxAttempts; i++ {
		out = append(out, b.NextBackOff())
	}
	return out
}

func (p Policy) backOff(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.WithMaxRetries(p.exponential(), uint64(attempts-1))
	if ctx == nil {
		ctx = context.Background()
	}
	return backoff.WithContext(b, ctx)
}

func (p Policy) exponential() *backoff.ExponentialBackOff {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Duration(1<<62 - 1)
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.BaseDelay),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(maxDelay),
		backoff.WithMaxElapsedTime(0),
	)
}

// Permanent 标记不应重试的错误
func Permanent(err error) error {
	return backoff.Permanent(err)
}

package settlement

import (
	"context"
	"time"
)

// RetryPolicy 补偿调用的有界重试策略。
// 只用于补偿路径：正向步骤失败不重试（快照可能已过期），直接转入补偿。
type RetryPolicy struct {
	MaxAttempts int           // 每个补偿步骤的最大尝试次数（含首次）
	BaseDelay   time.Duration // 首次退避时长
	MaxDelay    time.Duration // 退避上限
}

// DefaultRetryPolicy 默认策略：3 次尝试，200ms 起步指数退避，上限 2s。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Backoff 返回第 attempt 次重试前的退避时长（attempt 从 0 开始）。
// BaseDelay * 2^attempt，封顶 MaxDelay。
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		return p.BaseDelay
	}
	// 2^30 已远超任何合理上限，提前截断避免位移溢出
	if attempt > 30 {
		return p.MaxDelay
	}
	d := p.BaseDelay * time.Duration(1<<uint(attempt))
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// retry 以指数退避执行 fn，直到成功、尝试耗尽或 ctx 取消。
// 返回最后一次的错误。
func (p RetryPolicy) retry(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(p.Backoff(i - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

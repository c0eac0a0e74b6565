package rag

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy 显式重试策略：次数、退避曲线、可重试判定。
// 独立于网络层，可单测。
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Retryable 判定某个错误是否值得再试。nil表示所有错误都重试。
	Retryable func(error) bool
}

// Do 按策略执行fn。首次失败后指数退避，带抖动；
// 不可重试的错误立即返回，ctx取消时停止等待。
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		backoff := p.backoffFor(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

// backoffFor 第attempt次失败后的等待时长：base * 2^(attempt-1)，
// 上限MaxBackoff，并叠加最多50%的随机抖动
func (p RetryPolicy) backoffFor(attempt int) time.Duration {
	base := p.BaseBackoff
	if base <= 0 {
		base = 200 * time.Millisecond
	}

	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if p.MaxBackoff > 0 && backoff >= p.MaxBackoff {
			backoff = p.MaxBackoff
			break
		}
	}
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}

	jitter := time.Duration(rand.Int63n(int64(backoff)/2 + 1))
	return backoff + jitter
}

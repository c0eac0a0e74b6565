package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	p := RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}
	err := p.Do(context.Background(), func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	calls := 0
	p := RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}
	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyRecoversMidway(t *testing.T) {
	calls := 0
	p := RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("boom")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicyNonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	p := RetryPolicy{
		MaxAttempts: 5,
		BaseBackoff: time.Millisecond,
		Retryable:   func(err error) bool { return false },
	}
	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("permanent")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyContextCancelStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Hour}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func() error {
		calls++
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffForGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{BaseBackoff: 100 * time.Millisecond, MaxBackoff: 400 * time.Millisecond}

	// 抖动最多叠加50%，下限是未抖动的退避值
	first := p.backoffFor(1)
	assert.GreaterOrEqual(t, first, 100*time.Millisecond)
	assert.LessOrEqual(t, first, 150*time.Millisecond)

	deep := p.backoffFor(10)
	assert.LessOrEqual(t, deep, 600*time.Millisecond)
}

func TestIsTransientProviderError(t *testing.T) {
	assert.True(t, IsTransientProviderError(&openai.APIError{HTTPStatusCode: 429}))
	assert.True(t, IsTransientProviderError(&openai.APIError{HTTPStatusCode: 503}))
	assert.False(t, IsTransientProviderError(&openai.APIError{HTTPStatusCode: 400}))
	assert.False(t, IsTransientProviderError(&openai.APIError{HTTPStatusCode: 401}))
	// 传输层错误视为瞬时
	assert.True(t, IsTransientProviderError(errors.New("connection refused")))
}

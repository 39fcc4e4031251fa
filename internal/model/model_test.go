package model

import (
	"context"
	"testing"
	"time"

	"kai/internal/kerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyAttemptsAndBackoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelayMs: 100}
	assert.Equal(t, 4, p.Attempts())
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
}

func TestWithRetrySucceedsAfterRetryableErrors(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxRetries: 3, BaseDelayMs: 1}

	text, err := withRetry(context.Background(), "test-model", policy, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &kerrors.ModelError{Kind: kerrors.KindRateLimit, Message: "slow down", Model: "test-model"}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsImmediatelyOnTerminalError(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxRetries: 3, BaseDelayMs: 1}

	_, err := withRetry(context.Background(), "test-model", policy, func(ctx context.Context) (string, error) {
		calls++
		return "", &kerrors.ModelError{Kind: kerrors.KindInvalidAPIKey, Message: "bad key", Model: "test-model"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	var merr *kerrors.ModelError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, kerrors.KindInvalidAPIKey, merr.Kind)
}

func TestWithRetryExhaustsAndSurfacesLastError(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelayMs: 1}
	calls := 0

	_, err := withRetry(context.Background(), "test-model", policy, func(ctx context.Context) (string, error) {
		calls++
		return "", &kerrors.ModelError{Kind: kerrors.KindServerOverload, Message: "busy", Model: "test-model"}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelayMs: 1000}
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := withRetry(ctx, "test-model", policy, func(ctx context.Context) (string, error) {
		return "", &kerrors.ModelError{Kind: kerrors.KindRateLimit, Message: "slow down", Model: "test-model"}
	})

	assert.ErrorIs(t, err, context.Canceled)
}

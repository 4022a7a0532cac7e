package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
	"github.com/fyrsmithlabs/medrag/internal/logging"
)

// scripted returns the queued errors in order, then succeeds.
type scripted struct {
	errs  []error
	calls int
}

func (s *scripted) Generate(ctx context.Context, query string, contexts []string) (string, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return "", s.errs[s.calls-1]
	}
	return "answer", nil
}

var rateLimited = apierr.FromStatus("googleai", 429, "quota exceeded")

func TestRetrying_RecoversFromRateLimit(t *testing.T) {
	logger := logging.NewTestLogger()
	next := &scripted{errs: []error{rateLimited, rateLimited}}
	r := NewRetrying(next, RetryConfig{MaxAttempts: 3, Wait: time.Millisecond}, logger.Logger)

	got, err := r.Generate(context.Background(), "q", []string{"c"})
	require.NoError(t, err)
	assert.Equal(t, "answer", got)
	assert.Equal(t, 3, next.calls)
	logger.AssertLogged(t, zapcore.WarnLevel, "rate limited, retrying generation")
}

func TestRetrying_Exhausted(t *testing.T) {
	next := &scripted{errs: []error{rateLimited, rateLimited, rateLimited, rateLimited}}
	r := NewRetrying(next, RetryConfig{MaxAttempts: 3, Wait: time.Millisecond}, nil)

	_, err := r.Generate(context.Background(), "q", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrRateLimited)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, next.calls)
}

func TestRetrying_SingleAttemptDisablesRetry(t *testing.T) {
	next := &scripted{errs: []error{rateLimited}}
	r := NewRetrying(next, RetryConfig{MaxAttempts: 1, Wait: time.Millisecond}, nil)

	_, err := r.Generate(context.Background(), "q", nil)
	assert.ErrorIs(t, err, apierr.ErrRateLimited)
	assert.Equal(t, 1, next.calls)
}

func TestRetrying_OtherErrorsPropagateImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"auth", apierr.FromStatus("openai", 401, "bad key")},
		{"unavailable", apierr.FromStatus("openai", 503, "")},
		{"plain", errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &scripted{errs: []error{tt.err}}
			r := NewRetrying(next, RetryConfig{MaxAttempts: 3, Wait: time.Millisecond}, nil)

			_, err := r.Generate(context.Background(), "q", nil)
			assert.ErrorIs(t, err, tt.err)
			assert.False(t, apierr.IsRateLimited(err))
			assert.Equal(t, 1, next.calls)
		})
	}
}

func TestRetrying_CanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	next := Func(func(context.Context, string, []string) (string, error) {
		cancel()
		return "", rateLimited
	})
	r := NewRetrying(next, RetryConfig{MaxAttempts: 3, Wait: time.Hour}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Generate(ctx, "q", nil)
		done <- err
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestRetrying_PerAttemptTimeout(t *testing.T) {
	next := Func(func(ctx context.Context, _ string, _ []string) (string, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return "ok", nil
	})
	r := NewRetrying(next, RetryConfig{MaxAttempts: 1, Timeout: time.Minute}, nil)

	got, err := r.Generate(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

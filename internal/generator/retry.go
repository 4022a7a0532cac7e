package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
	"github.com/fyrsmithlabs/medrag/internal/logging"
)

// RetryConfig bounds the rate-limit retry.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first.
	// 1 disables retrying.
	MaxAttempts int
	// Wait is the constant pause between attempts.
	Wait time.Duration
	// Timeout bounds each attempt when positive.
	Timeout time.Duration
}

// Retrying retries the wrapped generator on rate-limit failures only.
type Retrying struct {
	next   Generator
	cfg    RetryConfig
	logger *logging.Logger
}

// NewRetrying wraps next with the retry policy.
func NewRetrying(next Generator, cfg RetryConfig, logger *logging.Logger) *Retrying {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Retrying{next: next, cfg: cfg, logger: logger}
}

// Generate calls the wrapped generator, waiting cfg.Wait after each
// rate-limited attempt. Exhaustion returns an error wrapping
// apierr.ErrRateLimited.
func (r *Retrying) Generate(ctx context.Context, query string, contexts []string) (string, error) {
	var (
		answer   string
		attempts int
	)

	operation := func() error {
		attempts++
		callCtx := ctx
		if r.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
			defer cancel()
		}

		out, err := r.next.Generate(callCtx, query, contexts)
		if err != nil {
			if apierr.IsRateLimited(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		answer = out
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.Wait), uint64(r.cfg.MaxAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		r.logger.Warn(ctx, "rate limited, retrying generation",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if apierr.IsRateLimited(err) {
			return "", fmt.Errorf("generation failed after %d attempts: %w", attempts, err)
		}
		return "", err
	}
	return answer, nil
}

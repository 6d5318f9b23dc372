package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/config"
	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/cenkalti/backoff/v4"
)

// retrier reruns read-modify-write operations that lost an optimistic version race.
type retrier struct {
	maxRetries uint64
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

func newRetrier(cfg config.SquadsConfig, logger *slog.Logger) retrier {
	return retrier{
		maxRetries: cfg.MaxWriteRetries,
		baseDelay:  cfg.RetryBaseDelay,
		maxDelay:   cfg.RetryMaxDelay,
		logger:     logger,
	}
}

func (r retrier) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.baseDelay
	exp.MaxInterval = r.maxDelay
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, r.maxRetries), ctx)
}

// do runs op until it succeeds, fails with anything other than a version conflict,
// or runs out of retries, in which case domain.ErrRetriesExhausted is returned.
func (r retrier) do(ctx context.Context, squadID string, op func() error) error {
	attempt := func() error {
		err := op()
		if err == nil || errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Debug("retrying squad write", "squad_id", squadID, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(attempt, r.policy(ctx), notify)
	if errors.Is(err, domain.ErrVersionConflict) {
		return fmt.Errorf("%w: squad %s after %d retries", domain.ErrRetriesExhausted, squadID, r.maxRetries)
	}
	return err
}

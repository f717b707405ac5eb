package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	klog "github.com/Klingon-tech/ecashkit/internal/log"
	"github.com/Klingon-tech/ecashkit/pkg/block"
	"github.com/Klingon-tech/ecashkit/pkg/tx"
)

// Default retry policy.
const (
	DefaultRetries         = 5
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 30 * time.Second
)

// Retrying retries transient failures of the wrapped provider with
// exponential backoff. Other errors are returned at once.
type Retrying struct {
	inner           Provider
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewRetrying wraps p with the default backoff and up to retries retries.
func NewRetrying(p Provider, retries int) *Retrying {
	if retries < 0 {
		retries = 0
	}
	return &Retrying{
		inner:           p,
		MaxRetries:      uint64(retries),
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

// Name returns the wrapped provider's name.
func (r *Retrying) Name() string {
	return r.inner.Name()
}

// FetchHeaders implements Provider.
func (r *Retrying) FetchHeaders(ctx context.Context, from uint32, count int) ([]*block.Header, error) {
	var headers []*block.Header
	err := r.do(ctx, "headers", func() error {
		var err error
		headers, err = r.inner.FetchHeaders(ctx, from, count)
		return err
	})
	return headers, err
}

// FetchTransactions implements Provider.
func (r *Retrying) FetchTransactions(ctx context.Context, addresses []string, fromHeight uint32) ([]*tx.Record, error) {
	var records []*tx.Record
	err := r.do(ctx, "transactions", func() error {
		var err error
		records, err = r.inner.FetchTransactions(ctx, addresses, fromHeight)
		return err
	})
	return records, err
}

func (r *Retrying) do(ctx context.Context, what string, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.InitialInterval
	eb.MaxInterval = r.MaxInterval
	eb.MaxElapsedTime = 0
	eb.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, r.MaxRetries), ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := fn()
		if err == nil || !IsRetryable(err) {
			if err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		klog.Provider.Debug().
			Err(err).
			Str("provider", r.inner.Name()).
			Str("request", what).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Retrying provider request")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if IsRetryable(err) {
			return fmt.Errorf("%s %s after %d attempts: %w", r.inner.Name(), what, attempt, err)
		}
		return err
	}
	return nil
}

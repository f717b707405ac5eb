// Package provider fetches headers and wallet transactions from remote
// indexers and composes them into a failover source.
package provider

import (
	"context"
	"errors"

	"github.com/Klingon-tech/ecashkit/pkg/block"
	"github.com/Klingon-tech/ecashkit/pkg/tx"
)

// Provider errors.
var (
	// ErrRangeUnavailable means the provider does not hold the requested
	// history. It triggers failover and is not reported to callers.
	ErrRangeUnavailable = errors.New("range outside provider history")
	// ErrTransient is retried with backoff.
	ErrTransient = errors.New("transient provider failure")
	// ErrPermanent is a request the provider will never serve.
	ErrPermanent = errors.New("provider request failed")
	// ErrExhausted means no configured provider can serve the request.
	ErrExhausted = errors.New("providers exhausted")
)

// Provider is a remote source of chain data.
type Provider interface {
	// Name identifies the provider in logs and the sync state.
	Name() string

	// FetchHeaders returns up to count consecutive headers starting at
	// from. An empty result means from is above the provider's tip.
	FetchHeaders(ctx context.Context, from uint32, count int) ([]*block.Header, error)

	// FetchTransactions returns the transactions touching addresses that
	// were mined at or above fromHeight, plus unconfirmed ones.
	FetchTransactions(ctx context.Context, addresses []string, fromHeight uint32) ([]*tx.Record, error)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

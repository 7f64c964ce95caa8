package kv

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/quietloop/sentineldb/pkg/dberr"
)

// retryMaxElapsed bounds the total time Retry spends retrying a single
// call before giving up and returning the last dberr.ErrConflict.
const retryMaxElapsed = 2 * time.Second

// Retry runs fn, retrying with exponential backoff whenever fn returns
// dberr.ErrConflict, and returning any other error (or nil) immediately.
// Multi-step writers use this instead of hand-rolled retry loops so the
// backoff policy lives in one place.
//
// bbolt serializes all writer transactions under one lock, so a Batch
// closure cannot observe a mid-transaction conflict the way a true MVCC
// backend would. ErrConflict is still reachable when a caller composes a
// read outside the transaction with a verify-then-write inside it (the
// Update/Overwrite verify-then-write paths in indexedmap); Retry exists
// for that case.
func Retry(onRetry func(), fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxElapsedTime = retryMaxElapsed

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, dberr.ErrConflict) {
			if onRetry != nil {
				onRetry()
			}
			return err
		}
		return backoff.Permanent(err)
	}, b)
}

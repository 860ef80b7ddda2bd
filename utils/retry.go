package utils

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"bazaar/errs"
)

const (
	retryBaseDelay = 2 * time.Millisecond
	retryMaxDelay  = 100 * time.Millisecond
)

// RetryStale runs attempt until it returns something other than errs.ErrStale.
// Stale attempts wait with jittered exponential backoff. If ctx ends first,
// the write is reported as a Persistence failure the client may retry.
func RetryStale(ctx context.Context, what string, attempt func() error) error {
	delay := retryBaseDelay
	for {
		err := attempt()
		if !errors.Is(err, errs.ErrStale) {
			return err
		}

		wait := delay/2 + rand.N(delay)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &errs.Error{
				Kind: errs.Persistence,
				Msg:  what + " is busy, try again",
				Err:  errors.Join(errs.ErrStale, ctx.Err()),
			}
		case <-timer.C:
		}
		if delay < retryMaxDelay {
			delay *= 2
		}
	}
}

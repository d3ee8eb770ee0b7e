// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

import (
	"context"
	"time"
)

// RetryPolicy bounds the retry behavior for the protocol's two transient
// conditions. A zero Backoff (or 1) keeps the delay fixed.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	Backoff  float64
}

// DefaultBusyRetry matches the evidence producer's transient busy condition
// while generating MSG1 or the quote: up to 5 attempts with a fixed delay.
var DefaultBusyRetry = RetryPolicy{Attempts: 5, Delay: 3 * time.Second}

// DefaultVerifyRetry matches an unreachable verification service: a small
// fixed attempt count with exponential backoff.
var DefaultVerifyRetry = RetryPolicy{Attempts: 5, Delay: 500 * time.Millisecond, Backoff: 2}

// retryWith runs op, retrying while retryable(err) holds, up to
// policy.Attempts total attempts. Between attempts it waits policy.Delay,
// scaled by policy.Backoff, and stops early if ctx is canceled or closed is
// closed. The returned error is the last error from op, so the transient
// taxonomy value survives budget exhaustion.
func retryWith(ctx context.Context, closed <-chan struct{}, policy RetryPolicy, retryable func(error) bool, op func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := policy.Delay

	var err error
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return ErrSessionClosed
		default:
		}

		if err = op(ctx); err == nil || !retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-closed:
			timer.Stop()
			return ErrSessionClosed
		case <-timer.C:
		}
		if policy.Backoff > 1 {
			delay = time.Duration(float64(delay) * policy.Backoff)
		}
	}
	return err
}

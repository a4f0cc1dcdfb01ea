// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ratelimit provides per-instance admission control, independent of
// health tracking. A denied acquisition means "skip this round", never a
// failure.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrWaitBudgetExceeded is returned by Wait when the limiter cannot admit
// the request within the caller's budget.
type ErrWaitBudgetExceeded struct {
	InstanceID int
	RetryAfter time.Duration
}

func (e *ErrWaitBudgetExceeded) Error() string {
	return fmt.Sprintf("instance %d rate limited, retry in %s", e.InstanceID, e.RetryAfter.Round(time.Millisecond))
}

func (e *ErrWaitBudgetExceeded) Is(target error) bool {
	_, ok := target.(*ErrWaitBudgetExceeded)
	return ok
}

// Limiter keys token buckets by instance id. Each bucket admits Requests
// tokens per Window with a burst equal to Requests.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[int]*rate.Limiter
	requests int
	window   time.Duration
	now      func() time.Time
}

// New builds a limiter admitting requests per window for each instance.
// Non-positive inputs fall back to 1 request per 2 seconds.
func New(requests int, window time.Duration) *Limiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Limiter{
		buckets:  make(map[int]*rate.Limiter),
		requests: requests,
		window:   window,
		now:      time.Now,
	}
}

func (l *Limiter) bucket(id int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[id]
	if !ok {
		b = rate.NewLimiter(rate.Every(l.window/time.Duration(l.requests)), l.requests)
		l.buckets[id] = b
	}
	return b
}

// TryAcquire attempts to take a token without blocking. When denied it
// reports how long until the next token becomes available.
func (l *Limiter) TryAcquire(id int) (granted bool, retryAfter time.Duration) {
	b := l.bucket(id)

	now := l.now()
	r := b.ReserveN(now, 1)
	if !r.OK() {
		return false, l.window
	}

	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Wait blocks until a token is available, the budget elapses, or ctx is
// cancelled. Budget exhaustion returns ErrWaitBudgetExceeded so callers can
// tell "skipped" apart from a real failure.
func (l *Limiter) Wait(ctx context.Context, id int, budget time.Duration) error {
	granted, retryAfter := l.TryAcquire(id)
	if granted {
		return nil
	}
	if retryAfter > budget {
		return &ErrWaitBudgetExceeded{InstanceID: id, RetryAfter: retryAfter}
	}

	waitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	if err := l.bucket(id).Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ErrWaitBudgetExceeded{InstanceID: id, RetryAfter: retryAfter}
	}
	return nil
}

// Reset drops the bucket for an instance so the next request starts with a
// full burst. Used when an instance's configuration changes.
func (l *Limiter) Reset(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, id)
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffZeroFailures(t *testing.T) {
	assert.Equal(t, time.Duration(0), Backoff(0, DefaultBackoffPolicy()))
	assert.Equal(t, time.Duration(0), Backoff(-1, DefaultBackoffPolicy()))
}

func TestBackoffNonDecreasing(t *testing.T) {
	policy := DefaultBackoffPolicy()
	prev := time.Duration(0)
	for failures := 0; failures <= 20; failures++ {
		d := Backoff(failures, policy)
		assert.GreaterOrEqual(t, d, prev, "backoff decreased at %d failures", failures)
		prev = d
	}
}

func TestBackoffCapped(t *testing.T) {
	policy := DefaultBackoffPolicy()
	policy.Max = 2 * time.Hour

	for failures := 1; failures <= 50; failures++ {
		assert.LessOrEqual(t, Backoff(failures, policy), 2*time.Hour)
	}
}

func TestBackoffBeyondTableUsesLastEntry(t *testing.T) {
	policy := BackoffPolicy{Periods: []time.Duration{0, time.Minute, 5 * time.Minute}}
	assert.Equal(t, 5*time.Minute, Backoff(2, policy))
	assert.Equal(t, 5*time.Minute, Backoff(100, policy))
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewTracker(DefaultBackoffPolicy(), clock.Now), clock
}

func TestTrackerUnknownInstanceIsEligible(t *testing.T) {
	tracker, _ := newTestTracker()
	assert.True(t, tracker.IsEligible(42))

	_, ok := tracker.Status(42)
	assert.False(t, ok)
}

func TestTrackerFailuresDisable(t *testing.T) {
	tracker, clock := newTestTracker()

	for i := 0; i < 5; i++ {
		tracker.RecordFailure(1, "timeout")
	}

	status, ok := tracker.Status(1)
	require.True(t, ok)
	assert.Equal(t, 5, status.ConsecutiveFailures)
	assert.Equal(t, "timeout", status.LastFailureReason)
	assert.Equal(t, clock.now.Add(Backoff(5, DefaultBackoffPolicy())), status.DisabledUntil)
	assert.False(t, tracker.IsEligible(1))
	assert.Equal(t, StateDisabled, status.StateAt(clock.Now()))
}

func TestTrackerEligibilityRestoredAfterBackoff(t *testing.T) {
	tracker, clock := newTestTracker()

	for i := 0; i < 5; i++ {
		tracker.RecordFailure(1, "upstream error")
	}
	require.False(t, tracker.IsEligible(1))

	clock.Advance(Backoff(5, DefaultBackoffPolicy()) + time.Second)
	assert.True(t, tracker.IsEligible(1))

	status, _ := tracker.Status(1)
	assert.Equal(t, StateDegraded, status.StateAt(clock.Now()))
}

func TestTrackerSuccessResets(t *testing.T) {
	tracker, clock := newTestTracker()

	for i := 0; i < 5; i++ {
		tracker.RecordFailure(1, "auth failed")
	}
	require.False(t, tracker.IsEligible(1))

	tracker.RecordSuccess(1, 200*time.Millisecond)

	assert.True(t, tracker.IsEligible(1))
	status, ok := tracker.Status(1)
	require.True(t, ok)
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.True(t, status.DisabledUntil.IsZero())
	assert.Equal(t, StateHealthy, status.StateAt(clock.Now()))
}

func TestTrackerSingleFailureDegradedNotDisabled(t *testing.T) {
	tracker, clock := newTestTracker()

	tracker.RecordFailure(7, "parse error")

	status, ok := tracker.Status(7)
	require.True(t, ok)
	assert.Equal(t, 1, status.ConsecutiveFailures)
	// One failure puts the instance on a short hold per the escalation table.
	assert.Equal(t, clock.now.Add(time.Minute), status.DisabledUntil)
	assert.False(t, tracker.IsEligible(7))

	clock.Advance(61 * time.Second)
	assert.True(t, tracker.IsEligible(7))
	assert.Equal(t, StateDegraded, status.StateAt(clock.Now()))
}

func TestTrackerRollingAverage(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.RecordSuccess(1, 100*time.Millisecond)
	status, _ := tracker.Status(1)
	assert.Equal(t, 100*time.Millisecond, status.AvgResponseTime)

	tracker.RecordSuccess(1, 900*time.Millisecond)
	status, _ = tracker.Status(1)
	assert.Equal(t, 200*time.Millisecond, status.AvgResponseTime)
}

func TestTrackerReset(t *testing.T) {
	tracker, _ := newTestTracker()

	for i := 0; i < 3; i++ {
		tracker.RecordFailure(9, "timeout")
	}
	require.False(t, tracker.IsEligible(9))

	tracker.Reset(9)
	assert.True(t, tracker.IsEligible(9))
	_, ok := tracker.Status(9)
	assert.False(t, ok)
}

func TestTrackerAll(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.RecordSuccess(1, time.Millisecond)
	tracker.RecordFailure(2, "timeout")

	all := tracker.All()
	assert.Len(t, all, 2)
}

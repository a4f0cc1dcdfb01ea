// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package health

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State labels an instance's current standing.
type State string

const (
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateDisabled State = "disabled"
)

// Status is the per-instance runtime record. Created on first observation,
// reset only by an explicit administrator action.
type Status struct {
	InstanceID          int           `json:"instanceId"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	LastFailureAt       time.Time     `json:"lastFailureAt,omitempty"`
	LastFailureReason   string        `json:"lastFailureReason,omitempty"`
	DisabledUntil       time.Time     `json:"disabledUntil,omitempty"`
	AvgResponseTime     time.Duration `json:"avgResponseTime,omitempty"`
	attempts            int64
}

// StateAt classifies the status relative to the given instant.
func (s *Status) StateAt(now time.Time) State {
	if !s.DisabledUntil.IsZero() && s.DisabledUntil.After(now) {
		return StateDisabled
	}
	if s.ConsecutiveFailures > 0 {
		return StateDegraded
	}
	return StateHealthy
}

// Tracker owns all mutable health state, keyed by instance id. Eligibility
// is computed lazily against the injected clock, so no background timer is
// needed and tests can drive time directly.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[int]*Status
	policy   BackoffPolicy
	now      func() time.Time
}

// NewTracker builds a tracker with the given backoff policy. A nil clock
// defaults to time.Now.
func NewTracker(policy BackoffPolicy, clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	if len(policy.Periods) == 0 {
		policy = DefaultBackoffPolicy()
	}
	return &Tracker{
		statuses: make(map[int]*Status),
		policy:   policy,
		now:      clock,
	}
}

func (t *Tracker) status(id int) *Status {
	if s, ok := t.statuses[id]; ok {
		return s
	}
	s := &Status{InstanceID: id}
	t.statuses[id] = s
	return s
}

// RecordSuccess clears the failure streak and folds the observed duration
// into the rolling average response time.
func (t *Tracker) RecordSuccess(id int, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.status(id)
	s.ConsecutiveFailures = 0
	s.DisabledUntil = time.Time{}
	s.LastFailureReason = ""
	s.attempts++
	if s.AvgResponseTime == 0 {
		s.AvgResponseTime = elapsed
	} else {
		s.AvgResponseTime = (s.AvgResponseTime*7 + elapsed) / 8
	}
}

// RecordFailure bumps the failure streak and recomputes the disablement
// window from the backoff policy.
func (t *Tracker) RecordFailure(id int, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	s := t.status(id)
	s.ConsecutiveFailures++
	s.LastFailureAt = now
	s.LastFailureReason = reason
	s.attempts++

	backoff := Backoff(s.ConsecutiveFailures, t.policy)
	if backoff > 0 {
		s.DisabledUntil = now.Add(backoff)
	} else {
		s.DisabledUntil = time.Time{}
	}

	log.Debug().
		Int("instance_id", id).
		Int("consecutive_failures", s.ConsecutiveFailures).
		Str("reason", reason).
		Dur("backoff", backoff).
		Msg("Recorded instance failure")
}

// IsEligible reports whether the instance may be included in a search round.
func (t *Tracker) IsEligible(id int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.statuses[id]
	if !ok {
		return true
	}
	return s.DisabledUntil.IsZero() || !s.DisabledUntil.After(t.now())
}

// Status returns a copy of the instance's record, or false when the
// instance has never been observed.
func (t *Tracker) Status(id int) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.statuses[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// All returns a snapshot of every tracked instance.
func (t *Tracker) All() []Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Status, 0, len(t.statuses))
	for _, s := range t.statuses {
		out = append(out, *s)
	}
	return out
}

// Reset drops the instance's record entirely. Administrator action.
func (t *Tracker) Reset(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.statuses, id)
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package health tracks per-instance failure state and computes how long a
// failing source stays out of rotation.
package health

import "time"

// BackoffPolicy controls the disablement curve. The zero value falls back to
// the default escalation table.
type BackoffPolicy struct {
	// Periods maps consecutive-failure count to disable duration. Index 0
	// must be 0 and the slice must be non-decreasing. Counts beyond the end
	// of the slice use the last entry.
	Periods []time.Duration
	// Max caps the computed duration. Zero means no extra cap beyond the
	// table itself.
	Max time.Duration
}

// escalationPeriods mirrors the cooldown curve Prowlarr applies to failing
// indexers: quick retries at first, then progressively longer holds.
var escalationPeriods = []time.Duration{
	0,
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	1 * time.Hour,
	3 * time.Hour,
	6 * time.Hour,
	12 * time.Hour,
	24 * time.Hour,
}

// DefaultBackoffPolicy returns the standard escalation table.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{Periods: escalationPeriods}
}

// Backoff returns how long an instance stays disabled after the given number
// of consecutive failures. Zero failures always yields zero; the result is
// non-decreasing in the failure count and capped by the policy.
func Backoff(consecutiveFailures int, policy BackoffPolicy) time.Duration {
	if consecutiveFailures <= 0 {
		return 0
	}

	periods := policy.Periods
	if len(periods) == 0 {
		periods = escalationPeriods
	}

	idx := consecutiveFailures
	if idx >= len(periods) {
		idx = len(periods) - 1
	}

	d := periods[idx]
	if policy.Max > 0 && d > policy.Max {
		d = policy.Max
	}
	return d
}

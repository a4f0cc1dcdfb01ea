// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scrape interprets a definition's login/search/parse rules against
// live HTTP responses.
package scrape

import (
	"errors"
	"fmt"
)

// ErrAuthFailed signals that a login rule failed or the source rejected the
// session. The orchestrator records it against health without retrying the
// same session.
var ErrAuthFailed = errors.New("authentication failed")

// AuthError wraps ErrAuthFailed with the detected reason.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return ErrAuthFailed.Error()
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return ErrAuthFailed }

// UpstreamError is a non-2xx response from the source.
type UpstreamError struct {
	StatusCode int
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d for %s", e.StatusCode, e.URL)
}

func (e *UpstreamError) Is(target error) bool {
	t, ok := target.(*UpstreamError)
	if !ok {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

// ParseError is a response body the parse rule could not make sense of at
// the document level. Individual row mismatches are not errors.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse response: %s", e.Reason)
}

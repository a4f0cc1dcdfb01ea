// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"strings"
	"time"
)

// SourceInstance is a user-configured deployment of a definition: its base
// URL, settings values and tuning. Owned by the configuration store; the
// core treats it as an input value object.
type SourceInstance struct {
	ID           int               `json:"id"`
	DefinitionID string            `json:"definitionId"`
	Name         string            `json:"name"`
	BaseURL      string            `json:"baseUrl"`
	Settings     map[string]string `json:"settings,omitempty"`
	Enabled      bool              `json:"enabled"`
	Priority     int               `json:"priority"`

	// Torrent-specific tuning.
	MinSeeders      int `json:"minSeeders,omitempty"`
	SeedTimeMinutes int `json:"seedTimeMinutes,omitempty"`

	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

// Setting returns a configured settings value, falling back to the
// definition's declared default.
func (i *SourceInstance) Setting(def *SourceDefinition, name string) string {
	if v, ok := i.Settings[name]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	if def != nil {
		for _, f := range def.Settings {
			if f.Name == name {
				return f.Default
			}
		}
	}
	return ""
}

// ResolvedBaseURL prefers the instance override, then the definition's
// primary URL.
func (i *SourceInstance) ResolvedBaseURL(def *SourceDefinition) string {
	if u := strings.TrimSpace(i.BaseURL); u != "" {
		return strings.TrimRight(u, "/")
	}
	if def != nil {
		return def.PrimaryURL()
	}
	return ""
}

// Timeout returns the per-instance search timeout.
func (i *SourceInstance) Timeout() time.Duration {
	if i.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(i.TimeoutSeconds) * time.Second
}

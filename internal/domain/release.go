// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"fmt"
	"strings"
	"time"
)

// SearchCriteria is one logical query, constructed per call and discarded
// after the round completes.
type SearchCriteria struct {
	Mode       SearchMode `json:"mode"`
	Query      string     `json:"query"`
	Season     *int       `json:"season,omitempty"`
	Episode    *int       `json:"episode,omitempty"`
	Categories []int      `json:"categories,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// Validate rejects malformed criteria before any instance is contacted.
func (c *SearchCriteria) Validate() error {
	if c.Mode == "" {
		c.Mode = SearchModeGeneral
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("invalid search mode %q", c.Mode)
	}
	if strings.TrimSpace(c.Query) == "" && c.Season == nil && len(c.Categories) == 0 {
		return fmt.Errorf("query, season or categories required")
	}
	if c.Episode != nil && c.Season == nil {
		return fmt.Errorf("episode requires season")
	}
	return nil
}

// Release is the canonical extracted record. At least one of DownloadURL,
// MagnetURI or InfoHash is present. Immutable once returned to the caller;
// merged duplicates carry every contributing source id.
type Release struct {
	Title       string    `json:"title"`
	Protocol    Protocol  `json:"protocol"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	MagnetURI   string    `json:"magnetUri,omitempty"`
	InfoHash    string    `json:"infoHash,omitempty"`
	InfoURL     string    `json:"infoUrl,omitempty"`
	Size        int64     `json:"size"`
	Seeders     int       `json:"seeders,omitempty"`
	Leechers    int       `json:"leechers,omitempty"`
	Grabs       int       `json:"grabs,omitempty"`
	PublishDate time.Time `json:"publishDate,omitempty"`
	SourceIDs   []int     `json:"sourceIds"`
	Categories  []int     `json:"categories,omitempty"`
}

// HasDownloadRef reports whether the release carries at least one usable
// download reference.
func (r *Release) HasDownloadRef() bool {
	return r.DownloadURL != "" || r.MagnetURI != "" || r.InfoHash != ""
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/moistari/rls"

	"github.com/autobrr/scour/internal/domain"
)

// deduper merges releases that describe the same underlying content. Two
// releases match on a shared info-hash or, absent one, on normalized
// title + size. An optional Levenshtein threshold catches near-identical
// titles from sites that decorate release names.
type deduper struct {
	fuzzyThreshold int

	byKey map[uint64]int
	// fuzzy candidates, only populated when the threshold is set
	noHash []int
	merged []domain.Release
}

func newDeduper(fuzzyThreshold int) *deduper {
	return &deduper{
		fuzzyThreshold: fuzzyThreshold,
		byKey:          make(map[uint64]int),
	}
}

// add folds one release into the merged set. Merging unions sourceIds and
// categories; the first-seen copy wins every other field.
func (d *deduper) add(release domain.Release) {
	key, normTitle := releaseKey(release)

	if idx, ok := d.byKey[key]; ok {
		d.merge(idx, release)
		return
	}

	if release.InfoHash == "" && d.fuzzyThreshold > 0 {
		if idx, ok := d.fuzzyMatch(normTitle, release.Size); ok {
			d.merge(idx, release)
			d.byKey[key] = idx
			return
		}
	}

	d.merged = append(d.merged, release)
	idx := len(d.merged) - 1
	d.byKey[key] = idx
	if release.InfoHash == "" {
		d.noHash = append(d.noHash, idx)
	}
}

func (d *deduper) merge(idx int, release domain.Release) {
	existing := &d.merged[idx]
	existing.SourceIDs = unionInts(existing.SourceIDs, release.SourceIDs)
	existing.Categories = unionInts(existing.Categories, release.Categories)
	if existing.InfoHash == "" {
		existing.InfoHash = release.InfoHash
	}
	if existing.MagnetURI == "" {
		existing.MagnetURI = release.MagnetURI
	}
	if existing.DownloadURL == "" {
		existing.DownloadURL = release.DownloadURL
	}
	if existing.Seeders < release.Seeders {
		existing.Seeders = release.Seeders
	}
}

func (d *deduper) fuzzyMatch(normTitle string, size int64) (int, bool) {
	for _, idx := range d.noHash {
		candidate := d.merged[idx]
		if candidate.Size != size {
			continue
		}
		candTitle := normalizeTitle(candidate.Title)
		dist := fuzzy.LevenshteinDistance(normTitle, candTitle)
		if dist >= 0 && dist <= d.fuzzyThreshold {
			return idx, true
		}
	}
	return 0, false
}

func (d *deduper) results() []domain.Release {
	return d.merged
}

// releaseKey hashes the identity of a release: the info-hash when present,
// otherwise normalized title + size.
func releaseKey(release domain.Release) (uint64, string) {
	if release.InfoHash != "" {
		return xxhash.Sum64String("hash|" + strings.ToLower(release.InfoHash)), ""
	}
	normTitle := normalizeTitle(release.Title)
	return xxhash.Sum64String(fmt.Sprintf("title|%s|%d", normTitle, release.Size)), normTitle
}

// normalizeTitle reduces a release name to a comparable form: parsed through
// rls so "The.Matrix.1999" and "The Matrix 1999" collapse together, then
// punctuation-stripped and lowercased.
func normalizeTitle(title string) string {
	r := rls.ParseString(title)

	parts := []string{r.Title}
	if r.Series > 0 {
		parts = append(parts, fmt.Sprintf("s%02d", r.Series))
	}
	if r.Episode > 0 {
		parts = append(parts, fmt.Sprintf("e%02d", r.Episode))
	}
	if r.Year > 0 {
		parts = append(parts, fmt.Sprintf("%d", r.Year))
	}
	if r.Resolution != "" {
		parts = append(parts, r.Resolution)
	}

	s := strings.ToLower(strings.Join(parts, " "))
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, ":", "")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, ".", " ")
	return strings.Join(strings.Fields(s), " ")
}

func unionInts(a, b []int) []int {
	seen := make(map[int]struct{}, len(a)+len(b))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		seen[v] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/scour/internal/domain"
)

func TestDeduperInfoHashWinsOverTitle(t *testing.T) {
	d := newDeduper(0)

	d.add(domain.Release{Title: "Completely Different Name", InfoHash: "abc", Size: 10, SourceIDs: []int{1}})
	d.add(domain.Release{Title: "Another Name Entirely", InfoHash: "ABC", Size: 999, SourceIDs: []int{2}})

	results := d.results()
	require.Len(t, results, 1)
	assert.ElementsMatch(t, []int{1, 2}, results[0].SourceIDs)
}

func TestDeduperBackfillsFields(t *testing.T) {
	d := newDeduper(0)

	d.add(domain.Release{Title: "Thing.2024.1080p", InfoHash: "dd", SourceIDs: []int{1}, Seeders: 5})
	d.add(domain.Release{Title: "Thing.2024.1080p", InfoHash: "dd", SourceIDs: []int{2}, Seeders: 40, DownloadURL: "https://x/dl", Categories: []int{2000}})

	results := d.results()
	require.Len(t, results, 1)
	assert.Equal(t, 40, results[0].Seeders)
	assert.Equal(t, "https://x/dl", results[0].DownloadURL)
	assert.Equal(t, []int{2000}, results[0].Categories)
}

func TestDeduperTitleSizeRequiresBothEqual(t *testing.T) {
	d := newDeduper(0)

	d.add(domain.Release{Title: "Thing.2024.1080p", Size: 100, SourceIDs: []int{1}, MagnetURI: "magnet:?a"})
	d.add(domain.Release{Title: "Thing.2024.1080p", Size: 200, SourceIDs: []int{2}, MagnetURI: "magnet:?b"})

	assert.Len(t, d.results(), 2)
}

func TestDeduperFuzzyDisabledByDefault(t *testing.T) {
	d := newDeduper(0)

	d.add(domain.Release{Title: "Alpha Show S01E01 1080p", Size: 100, SourceIDs: []int{1}})
	d.add(domain.Release{Title: "Alphaa Show S01E01 1080p", Size: 100, SourceIDs: []int{2}})

	assert.Len(t, d.results(), 2)
}

func TestDeduperFuzzyMergesNearTitles(t *testing.T) {
	d := newDeduper(3)

	d.add(domain.Release{Title: "Alpha Show S01E01 1080p", Size: 100, SourceIDs: []int{1}})
	d.add(domain.Release{Title: "Alphaa Show S01E01 1080p", Size: 100, SourceIDs: []int{2}})

	results := d.results()
	require.Len(t, results, 1)
	assert.ElementsMatch(t, []int{1, 2}, results[0].SourceIDs)
}

func TestDeduperFuzzyNeverCrossesSizes(t *testing.T) {
	d := newDeduper(5)

	d.add(domain.Release{Title: "Show S01E01", Size: 100, SourceIDs: []int{1}})
	d.add(domain.Release{Title: "Show S01E02", Size: 300, SourceIDs: []int{2}})

	assert.Len(t, d.results(), 2)
}

func TestNormalizeTitleCollapsesSeparators(t *testing.T) {
	a := normalizeTitle("The.Matrix.1999.1080p.BluRay")
	b := normalizeTitle("The Matrix 1999 1080p BluRay")
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

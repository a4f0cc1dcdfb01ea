// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package categories holds the canonical category tree and the mapping
// from per-site category schemes onto it.
package categories

import (
	"sort"
	"strconv"
	"strings"

	"github.com/autobrr/scour/internal/domain"
)

// Category is one node in the canonical tree. ParentID is 0 for top-level
// categories.
type Category struct {
	ID       int    `json:"id"`
	ParentID int    `json:"parentId,omitempty"`
	Name     string `json:"name"`
}

// Canonical ids follow the Torznab numbering convention so existing
// integrations map cleanly.
const (
	Console       = 1000
	Movies        = 2000
	MoviesSD      = 2030
	MoviesHD      = 2040
	MoviesUHD     = 2045
	MoviesBluRay  = 2050
	Movies3D      = 2060
	Audio         = 3000
	AudioMP3      = 3010
	AudioLossless = 3040
	PC            = 4000
	TV            = 5000
	TVSD          = 5030
	TVHD          = 5040
	TVUHD         = 5045
	TVSport       = 5060
	TVAnime       = 5070
	TVDocu        = 5080
	XXX           = 6000
	Books         = 7000
	BooksEbook    = 7020
	BooksComics   = 7030
	Other         = 8000
)

var tree = map[int]Category{
	Console:       {ID: Console, Name: "Console"},
	Movies:        {ID: Movies, Name: "Movies"},
	MoviesSD:      {ID: MoviesSD, ParentID: Movies, Name: "Movies/SD"},
	MoviesHD:      {ID: MoviesHD, ParentID: Movies, Name: "Movies/HD"},
	MoviesUHD:     {ID: MoviesUHD, ParentID: Movies, Name: "Movies/UHD"},
	MoviesBluRay:  {ID: MoviesBluRay, ParentID: Movies, Name: "Movies/BluRay"},
	Movies3D:      {ID: Movies3D, ParentID: Movies, Name: "Movies/3D"},
	Audio:         {ID: Audio, Name: "Audio"},
	AudioMP3:      {ID: AudioMP3, ParentID: Audio, Name: "Audio/MP3"},
	AudioLossless: {ID: AudioLossless, ParentID: Audio, Name: "Audio/Lossless"},
	PC:            {ID: PC, Name: "PC"},
	TV:            {ID: TV, Name: "TV"},
	TVSD:          {ID: TVSD, ParentID: TV, Name: "TV/SD"},
	TVHD:          {ID: TVHD, ParentID: TV, Name: "TV/HD"},
	TVUHD:         {ID: TVUHD, ParentID: TV, Name: "TV/UHD"},
	TVSport:       {ID: TVSport, ParentID: TV, Name: "TV/Sport"},
	TVAnime:       {ID: TVAnime, ParentID: TV, Name: "TV/Anime"},
	TVDocu:        {ID: TVDocu, ParentID: TV, Name: "TV/Documentary"},
	XXX:           {ID: XXX, Name: "XXX"},
	Books:         {ID: Books, Name: "Books"},
	BooksEbook:    {ID: BooksEbook, ParentID: Books, Name: "Books/EBook"},
	BooksComics:   {ID: BooksComics, ParentID: Books, Name: "Books/Comics"},
	Other:         {ID: Other, Name: "Other"},
}

// Lookup returns the canonical category for an id.
func Lookup(id int) (Category, bool) {
	c, ok := tree[id]
	return c, ok
}

// All returns every canonical category sorted by id.
func All() []Category {
	out := make([]Category, 0, len(tree))
	for _, c := range tree {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Normalize expands a category set so every member's parent is also present,
// drops unknown ids, and returns a sorted, deduplicated slice. Idempotent.
func Normalize(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		c, ok := tree[id]
		if !ok {
			continue
		}
		seen[c.ID] = struct{}{}
		for c.ParentID != 0 {
			c = tree[c.ParentID]
			seen[c.ID] = struct{}{}
		}
	}

	out := make([]int, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// IsMovie reports whether the id sits in the Movies subtree.
func IsMovie(id int) bool {
	return inSubtree(id, Movies)
}

// IsTV reports whether the id sits in the TV subtree.
func IsTV(id int) bool {
	return inSubtree(id, TV)
}

func inSubtree(id, root int) bool {
	c, ok := tree[id]
	for ok {
		if c.ID == root {
			return true
		}
		if c.ParentID == 0 {
			return false
		}
		c, ok = tree[c.ParentID]
	}
	return false
}

// MapSourceCategory translates a site-specific category value (a site id or
// label) into canonical ids using the definition's mapping table. The match
// is case-insensitive on labels. Unmapped values fall back to Other.
func MapSourceCategory(def *domain.SourceDefinition, value string) []int {
	value = strings.TrimSpace(value)
	if value == "" || def == nil || len(def.CategoryMap) == 0 {
		return []int{Other}
	}

	if ids, ok := def.CategoryMap[value]; ok {
		return Normalize(ids)
	}

	lower := strings.ToLower(value)
	for k, ids := range def.CategoryMap {
		if strings.ToLower(k) == lower {
			return Normalize(ids)
		}
	}

	// Numeric site ids occasionally arrive with surrounding junk.
	if n, err := strconv.Atoi(value); err == nil {
		if ids, ok := def.CategoryMap[strconv.Itoa(n)]; ok {
			return Normalize(ids)
		}
	}

	return []int{Other}
}

// ForMode returns the default canonical filter for a search mode when the
// caller supplied no categories of its own.
func ForMode(mode domain.SearchMode) []int {
	switch mode {
	case domain.SearchModeMovie:
		return []int{Movies}
	case domain.SearchModeTV:
		return []int{TV}
	default:
		return nil
	}
}

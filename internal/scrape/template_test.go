// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autobrr/scour/internal/domain"
)

func intPtr(n int) *int { return &n }

func TestTemplateResolve(t *testing.T) {
	ctx := TemplateContext{
		"query":          "the matrix",
		"season":         "1",
		"episode":        "4",
		"categories":     "2000,5000",
		"setting.apikey": "secret",
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain query", in: "/search?q=${query}", want: "/search?q=the matrix"},
		{name: "setting lookup", in: "apikey=${setting.apikey}", want: "apikey=secret"},
		{name: "zero padding", in: "S${season:02}E${episode:02}", want: "S01E04"},
		{name: "categories join", in: "cats=${categories}", want: "cats=2000,5000"},
		{name: "unknown placeholder empty", in: "x=${nonexistent}", want: "x="},
		{name: "no placeholders", in: "/recent", want: "/recent"},
		{name: "multiple occurrences", in: "${query}/${query}", want: "the matrix/the matrix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ctx.Resolve(tt.in))
		})
	}
}

func TestNewTemplateContext(t *testing.T) {
	def := &domain.SourceDefinition{
		Settings: []domain.SettingsField{
			{Name: "apikey", Default: "default-key"},
		},
	}
	instance := &domain.SourceInstance{
		Settings: map[string]string{"passkey": "abc123"},
	}
	criteria := domain.SearchCriteria{
		Mode:       domain.SearchModeTV,
		Query:      "severance",
		Season:     intPtr(2),
		Episode:    intPtr(3),
		Categories: []int{5000},
	}

	ctx := NewTemplateContext(def, instance, criteria)

	assert.Equal(t, "severance", ctx["query"])
	assert.Equal(t, "2", ctx["season"])
	assert.Equal(t, "3", ctx["episode"])
	assert.Equal(t, "5000", ctx["categories"])
	// Declared setting falls back to the definition default.
	assert.Equal(t, "default-key", ctx["setting.apikey"])
	// Undeclared instance settings are still addressable.
	assert.Equal(t, "abc123", ctx["setting.passkey"])
}

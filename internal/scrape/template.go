// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/autobrr/scour/internal/domain"
)

// placeholderRe matches ${name} and ${name:02}. The optional suffix is a
// zero-pad width applied to numeric values, used for S01E02 style queries.
var placeholderRe = regexp.MustCompile(`\$\{([a-zA-Z0-9_.]+)(?::(\d+))?\}`)

// TemplateContext carries every value a rule string may reference.
type TemplateContext map[string]string

// NewTemplateContext builds the standard context for one search: criteria
// values plus the instance's resolved settings under "setting.".
func NewTemplateContext(def *domain.SourceDefinition, instance *domain.SourceInstance, criteria domain.SearchCriteria) TemplateContext {
	ctx := TemplateContext{
		"query": criteria.Query,
	}
	if criteria.Season != nil {
		ctx["season"] = strconv.Itoa(*criteria.Season)
	}
	if criteria.Episode != nil {
		ctx["episode"] = strconv.Itoa(*criteria.Episode)
	}
	if len(criteria.Categories) > 0 {
		parts := make([]string, len(criteria.Categories))
		for i, c := range criteria.Categories {
			parts[i] = strconv.Itoa(c)
		}
		ctx["categories"] = strings.Join(parts, ",")
	}

	if def != nil {
		for _, field := range def.Settings {
			ctx["setting."+field.Name] = instance.Setting(def, field.Name)
		}
	}
	// Instance settings not declared in the schema are still addressable.
	if instance != nil {
		for name, value := range instance.Settings {
			ctx["setting."+name] = value
		}
	}
	return ctx
}

// Set adds or replaces a value, returning the context for chaining.
func (c TemplateContext) Set(name, value string) TemplateContext {
	c[name] = value
	return c
}

// Resolve expands every placeholder in s against the context. Unknown
// placeholders resolve to the empty string.
func (c TemplateContext) Resolve(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		groups := placeholderRe.FindStringSubmatch(m)
		value := c[groups[1]]
		if groups[2] != "" && value != "" {
			if n, err := strconv.Atoi(value); err == nil {
				width, _ := strconv.Atoi(groups[2])
				return fmt.Sprintf("%0*d", width, n)
			}
		}
		return value
	})
}

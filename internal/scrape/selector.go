// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scrape

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/autobrr/scour/internal/domain"
)

// Row is one repeated result block, independent of the response format.
type Row interface {
	// Field extracts the raw value for one selector. ok is false when the
	// selector matched nothing.
	Field(sel domain.FieldSelector) (value string, ok bool, err error)
}

// Rows evaluates the parse rule's row selector over a response body.
// HTML and XML both go through goquery's lenient parser, which is how the
// definition ecosystem expects malformed tracker markup to be handled.
// A body with zero matching rows is a valid empty result, not an error.
func Rows(rule domain.ParseRule, body string) ([]Row, error) {
	switch rule.Type {
	case domain.ResponseTypeHTML, domain.ResponseTypeXML:
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			return nil, &ParseError{Reason: err.Error()}
		}
		var rows []Row
		doc.Find(rule.Rows).Each(func(_ int, s *goquery.Selection) {
			rows = append(rows, &htmlRow{selection: s})
		})
		return rows, nil

	case domain.ResponseTypeJSON:
		if !gjson.Valid(body) {
			return nil, &ParseError{Reason: "invalid JSON body"}
		}
		result := gjson.Get(body, rule.Rows)
		if !result.Exists() {
			return nil, nil
		}
		if !result.IsArray() {
			return nil, &ParseError{Reason: fmt.Sprintf("rows path %q is not an array", rule.Rows)}
		}
		var rows []Row
		for _, item := range result.Array() {
			rows = append(rows, &jsonRow{value: item})
		}
		return rows, nil

	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unsupported response type %q", rule.Type)}
	}
}

type htmlRow struct {
	selection *goquery.Selection
}

func (r *htmlRow) Field(sel domain.FieldSelector) (string, bool, error) {
	target := r.selection
	if sel.Selector != "" {
		target = r.selection.Find(sel.Selector)
		if target.Length() == 0 {
			return "", false, nil
		}
	}

	var raw string
	if sel.Attribute != "" {
		attr, exists := target.First().Attr(sel.Attribute)
		if !exists {
			return "", false, nil
		}
		raw = attr
	} else {
		raw = strings.TrimSpace(target.First().Text())
	}

	return applyPattern(raw, sel.Pattern)
}

type jsonRow struct {
	value gjson.Result
}

func (r *jsonRow) Field(sel domain.FieldSelector) (string, bool, error) {
	if sel.Selector == "" {
		return "", false, nil
	}
	result := r.value.Get(sel.Selector)
	if !result.Exists() {
		return "", false, nil
	}
	return applyPattern(result.String(), sel.Pattern)
}

// applyPattern runs the selector's optional regex over the extracted text,
// preferring the first capture group.
func applyPattern(raw, pattern string) (string, bool, error) {
	if pattern == "" {
		return raw, true, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return "", false, nil
	}
	if len(m) > 1 {
		return m[1], true, nil
	}
	return m[0], true, nil
}

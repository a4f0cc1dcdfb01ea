// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scrape

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/autobrr/scour/internal/domain"
)

// ApplyFilters runs a field's filter chain over the raw extracted value.
// The chain short-circuits on the first failing filter.
func ApplyFilters(value string, filters []domain.Filter) (string, error) {
	var err error
	for _, f := range filters {
		value, err = applyFilter(value, f)
		if err != nil {
			return "", fmt.Errorf("filter %q: %w", f.Name, err)
		}
	}
	return value, nil
}

func applyFilter(value string, f domain.Filter) (string, error) {
	switch f.Name {
	case "regexp":
		if len(f.Args) < 1 {
			return "", fmt.Errorf("missing pattern")
		}
		re, err := regexp.Compile(f.Args[0])
		if err != nil {
			return "", err
		}
		m := re.FindStringSubmatch(value)
		if m == nil {
			return "", fmt.Errorf("pattern %q did not match %q", f.Args[0], value)
		}
		if len(m) > 1 {
			return m[1], nil
		}
		return m[0], nil

	case "re_replace":
		if len(f.Args) < 2 {
			return "", fmt.Errorf("need pattern and replacement")
		}
		re, err := regexp.Compile(f.Args[0])
		if err != nil {
			return "", err
		}
		return re.ReplaceAllString(value, f.Args[1]), nil

	case "replace":
		if len(f.Args) < 2 {
			return "", fmt.Errorf("need old and new")
		}
		return strings.ReplaceAll(value, f.Args[0], f.Args[1]), nil

	case "split":
		if len(f.Args) < 2 {
			return "", fmt.Errorf("need separator and index")
		}
		idx, err := strconv.Atoi(f.Args[1])
		if err != nil {
			return "", fmt.Errorf("invalid index %q", f.Args[1])
		}
		parts := strings.Split(value, f.Args[0])
		if idx < 0 {
			idx = len(parts) + idx
		}
		if idx < 0 || idx >= len(parts) {
			return "", fmt.Errorf("index %d out of range for %d parts", idx, len(parts))
		}
		return parts[idx], nil

	case "trim":
		if len(f.Args) > 0 {
			return strings.Trim(value, f.Args[0]), nil
		}
		return strings.TrimSpace(value), nil

	case "append":
		if len(f.Args) < 1 {
			return "", fmt.Errorf("missing suffix")
		}
		return value + f.Args[0], nil

	case "prepend":
		if len(f.Args) < 1 {
			return "", fmt.Errorf("missing prefix")
		}
		return f.Args[0] + value, nil

	case "tolower":
		return strings.ToLower(value), nil

	case "toupper":
		return strings.ToUpper(value), nil

	case "urldecode":
		return url.QueryUnescape(value)

	case "querystring":
		if len(f.Args) < 1 {
			return "", fmt.Errorf("missing parameter name")
		}
		u, err := url.Parse(value)
		if err != nil {
			return "", err
		}
		return u.Query().Get(f.Args[0]), nil

	case "dateparse":
		layout := ""
		if len(f.Args) > 0 {
			layout = f.Args[0]
		}
		ts, err := parseDate(value, layout)
		if err != nil {
			return "", err
		}
		return ts.UTC().Format(time.RFC3339), nil

	case "sizeparse":
		n, err := parseSize(value)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil

	default:
		return "", fmt.Errorf("unknown filter")
	}
}

// parseDate handles explicit layouts, unix timestamps, and the fuzzy
// relative forms public sites love ("2 hours ago", "Yesterday").
func parseDate(value, layout string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	switch layout {
	case "unix":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid unix timestamp %q", value)
		}
		return time.Unix(n, 0), nil
	case "", "fuzzy":
		return parseFuzzyDate(value)
	default:
		t, err := time.Parse(layout, value)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}
}

var relativeRe = regexp.MustCompile(`(?i)^(\d+)\s*(second|sec|minute|min|hour|hr|day|week|month|year)s?\s+ago$`)

func parseFuzzyDate(value string) (time.Time, error) {
	now := time.Now()
	lower := strings.ToLower(value)

	switch lower {
	case "now", "just now", "today":
		return now, nil
	case "yesterday":
		return now.AddDate(0, 0, -1), nil
	}

	if m := relativeRe.FindStringSubmatch(value); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch strings.ToLower(m[2]) {
		case "second", "sec":
			return now.Add(-time.Duration(n) * time.Second), nil
		case "minute", "min":
			return now.Add(-time.Duration(n) * time.Minute), nil
		case "hour", "hr":
			return now.Add(-time.Duration(n) * time.Hour), nil
		case "day":
			return now.AddDate(0, 0, -n), nil
		case "week":
			return now.AddDate(0, 0, -7*n), nil
		case "month":
			return now.AddDate(0, -n, 0), nil
		case "year":
			return now.AddDate(-n, 0, 0), nil
		}
	}

	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02 Jan 2006",
		"Jan 2, 2006",
		"01/02/2006",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

var sizeRe = regexp.MustCompile(`(?i)^([\d.,]+)\s*([KMGTP]?i?B)$`)

// parseSize converts "1.5 GB" style strings to bytes. Units are treated as
// binary multiples, matching how trackers report sizes.
func parseSize(value string) (int64, error) {
	value = strings.TrimSpace(value)

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, nil
	}

	m := sizeRe.FindStringSubmatch(value)
	if m == nil {
		return 0, fmt.Errorf("unrecognized size %q", value)
	}

	num, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized size %q", value)
	}

	unit := strings.ToUpper(m[2])
	unit = strings.TrimSuffix(unit, "IB")
	unit = strings.TrimSuffix(unit, "B")

	var mult float64 = 1
	switch unit {
	case "K":
		mult = 1 << 10
	case "M":
		mult = 1 << 20
	case "G":
		mult = 1 << 30
	case "T":
		mult = 1 << 40
	case "P":
		mult = 1 << 50
	}

	return int64(num * mult), nil
}

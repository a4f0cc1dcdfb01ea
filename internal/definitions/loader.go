// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package definitions loads, validates and indexes declarative source
// definitions. One malformed definition never blocks the rest: validation
// problems attach to the registered record as data.
package definitions

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/scour/internal/domain"
)

// knownKeys are the top-level document keys the loader understands. Anything
// else is preserved verbatim in Extra so community files survive a
// load/serialize round trip.
var knownKeys = map[string]struct{}{
	"id": {}, "name": {}, "description": {}, "protocol": {}, "access": {},
	"language": {}, "urls": {}, "settings": {}, "caps": {}, "categorymap": {},
	"login": {}, "search": {}, "parse": {},
}

// Parse decodes one YAML document into a typed definition. Unknown top-level
// keys land in Extra. A document that is not valid YAML is a hard error;
// semantic problems are left for Validate.
func Parse(data []byte) (*domain.SourceDefinition, error) {
	var def domain.SourceDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrap(err, "failed to parse definition")
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse definition")
	}
	for k, v := range raw {
		if _, ok := knownKeys[k]; !ok {
			if def.Extra == nil {
				def.Extra = make(map[string]any)
			}
			def.Extra[k] = v
		}
	}

	return &def, nil
}

// Serialize renders a definition back to YAML, re-attaching preserved
// unknown keys.
func Serialize(def *domain.SourceDefinition) ([]byte, error) {
	var raw map[string]any
	typed, err := yaml.Marshal(def)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize definition")
	}
	if err := yaml.Unmarshal(typed, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to serialize definition")
	}
	for k, v := range def.Extra {
		raw[k] = v
	}
	return yaml.Marshal(raw)
}

// Validate checks the semantic contract. It returns every problem found, not
// just the first, so a record can surface all of them at once.
func Validate(def *domain.SourceDefinition) []string {
	var problems []string

	if strings.TrimSpace(def.ID) == "" {
		problems = append(problems, "missing id")
	}
	if strings.TrimSpace(def.Name) == "" {
		problems = append(problems, "missing name")
	}
	if def.Protocol == "" {
		problems = append(problems, "missing protocol")
	} else if !def.Protocol.Valid() {
		problems = append(problems, fmt.Sprintf("invalid protocol %q", def.Protocol))
	}
	if def.Access != "" && !def.Access.Valid() {
		problems = append(problems, fmt.Sprintf("invalid access tier %q", def.Access))
	}
	if def.Login != nil && !def.Login.Method.Valid() {
		problems = append(problems, fmt.Sprintf("invalid auth method %q", def.Login.Method))
	}
	if def.Access.RequiresLogin() && def.Login == nil {
		problems = append(problems, "access tier requires a login rule")
	}
	if len(def.BaseURLs) == 0 {
		problems = append(problems, "missing urls")
	}
	if len(def.Search) == 0 {
		problems = append(problems, "missing search rules")
	} else {
		for i, rule := range def.Search {
			if rule.Mode != "" && !rule.Mode.Valid() {
				problems = append(problems, fmt.Sprintf("search rule %d: invalid mode %q", i, rule.Mode))
			}
			if strings.TrimSpace(rule.Path) == "" {
				problems = append(problems, fmt.Sprintf("search rule %d: missing path", i))
			}
		}
	}
	if def.Parse.Rows == "" {
		problems = append(problems, "missing parse rows selector")
	}
	switch def.Parse.Type {
	case domain.ResponseTypeHTML, domain.ResponseTypeXML, domain.ResponseTypeJSON:
	case "":
		problems = append(problems, "missing parse type")
	default:
		problems = append(problems, fmt.Sprintf("invalid parse type %q", def.Parse.Type))
	}
	if _, ok := def.Parse.Fields[domain.FieldTitle]; !ok {
		problems = append(problems, "parse fields must include title")
	}
	if !hasDownloadField(def) {
		problems = append(problems, "parse fields must include download, magnet or infohash")
	}
	for _, mode := range def.Capabilities.SearchModes {
		if !mode.Valid() {
			problems = append(problems, fmt.Sprintf("invalid capability mode %q", mode))
		}
	}

	return problems
}

func hasDownloadField(def *domain.SourceDefinition) bool {
	for _, name := range []string{domain.FieldDownload, domain.FieldMagnet, domain.FieldInfoHash} {
		if _, ok := def.Parse.Fields[name]; ok {
			return true
		}
	}
	return false
}

// LoadFile parses a single definition file.
func LoadFile(path string) (*domain.SourceDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read definition %s", path)
	}
	return Parse(data)
}

// LoadDir parses every .yml/.yaml file under dir, sorted by name for
// deterministic registration order. Unreadable or unparseable files are
// logged and skipped.
func LoadDir(dir string) []*domain.SourceDefinition {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("Failed to walk definitions directory")
		return nil
	}
	sort.Strings(paths)

	defs := make([]*domain.SourceDefinition, 0, len(paths))
	for _, path := range paths {
		def, err := LoadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping unparseable definition")
			continue
		}
		defs = append(defs, def)
	}
	return defs
}

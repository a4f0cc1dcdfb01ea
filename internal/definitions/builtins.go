// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package definitions

import (
	"embed"
	"io/fs"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/scour/internal/domain"
)

//go:embed builtins/*.yml
var builtinFS embed.FS

// LoadBuiltins parses the definitions shipped inside the binary.
func LoadBuiltins() []*domain.SourceDefinition {
	entries, err := fs.ReadDir(builtinFS, "builtins")
	if err != nil {
		log.Error().Err(err).Msg("Failed to read embedded definitions")
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	defs := make([]*domain.SourceDefinition, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(builtinFS, "builtins/"+name)
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("Failed to read embedded definition")
			continue
		}
		def, err := Parse(data)
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("Failed to parse embedded definition")
			continue
		}
		defs = append(defs, def)
	}
	return defs
}

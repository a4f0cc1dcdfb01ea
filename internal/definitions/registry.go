// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package definitions

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/scour/internal/domain"
)

// RegisteredDefinition wraps a definition with registration metadata. The
// registry owns these records; they are replaced on reload, never mutated in
// place.
type RegisteredDefinition struct {
	Definition   *domain.SourceDefinition `json:"definition"`
	Provenance   domain.Provenance        `json:"provenance"`
	RegisteredAt time.Time                `json:"registeredAt"`
	Enabled      bool                     `json:"enabled"`

	// Factory builds a custom searcher for native definitions. Nil means
	// the standard definition engine handles it.
	Factory func() domain.Searcher `json:"-"`

	// ValidationErrors found at registration time. A record with problems
	// stays listed for diagnostics but is never searchable.
	ValidationErrors []string `json:"validationErrors,omitempty"`
}

// Valid reports whether the record passed validation.
func (r *RegisteredDefinition) Valid() bool {
	return len(r.ValidationErrors) == 0
}

// RegisterOptions tune a single Register call.
type RegisterOptions struct {
	// Replace allows overwriting an existing record with the same id.
	Replace bool
	// Disabled registers the record with Enabled=false.
	Disabled bool
	// Factory attaches a custom searcher constructor.
	Factory func() domain.Searcher
}

// Filter narrows a Query. Zero-value fields match everything.
type Filter struct {
	Protocol   domain.Protocol
	Access     domain.AccessTier
	AuthMethod domain.AuthMethod
	Provenance domain.Provenance
	Search     string
	Enabled    *bool
	ValidOnly  bool
}

// Registry is the in-memory index of registered definitions. Reads are
// frequent and concurrent; mutation is a rare administrative operation
// behind a coarse lock.
type Registry struct {
	mu           sync.RWMutex
	byID         map[string]*RegisteredDefinition
	byProtocol   map[domain.Protocol][]string
	byProvenance map[domain.Provenance][]string
	now          func() time.Time
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:         make(map[string]*RegisteredDefinition),
		byProtocol:   make(map[domain.Protocol][]string),
		byProvenance: make(map[domain.Provenance][]string),
		now:          time.Now,
	}
}

// Register validates and indexes a definition. It returns false without
// touching state when the id already exists and Replace is not set.
// Validation problems do not block registration; they attach to the record.
func (r *Registry) Register(def *domain.SourceDefinition, provenance domain.Provenance, opts RegisterOptions) bool {
	if def == nil || strings.TrimSpace(def.ID) == "" {
		return false
	}

	record := &RegisteredDefinition{
		Definition:       def,
		Provenance:       provenance,
		RegisteredAt:     r.now(),
		Enabled:          !opts.Disabled,
		Factory:          opts.Factory,
		ValidationErrors: Validate(def),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[def.ID]; ok {
		if !opts.Replace {
			return false
		}
		r.dropFromIndexes(existing)
	}

	r.byID[def.ID] = record
	r.byProtocol[def.Protocol] = append(r.byProtocol[def.Protocol], def.ID)
	r.byProvenance[provenance] = append(r.byProvenance[provenance], def.ID)

	if !record.Valid() {
		log.Warn().
			Str("definition", def.ID).
			Strs("problems", record.ValidationErrors).
			Msg("Registered definition with validation errors")
	}
	return true
}

func (r *Registry) dropFromIndexes(record *RegisteredDefinition) {
	id := record.Definition.ID
	r.byProtocol[record.Definition.Protocol] = removeID(r.byProtocol[record.Definition.Protocol], id)
	r.byProvenance[record.Provenance] = removeID(r.byProvenance[record.Provenance], id)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Load registers a batch of definitions under one provenance and returns the
// resulting records in input order. Id collisions within the batch keep the
// first occurrence.
func (r *Registry) Load(defs []*domain.SourceDefinition, provenance domain.Provenance) []*RegisteredDefinition {
	records := make([]*RegisteredDefinition, 0, len(defs))
	for _, def := range defs {
		if !r.Register(def, provenance, RegisterOptions{}) {
			log.Debug().Str("definition", def.ID).Msg("Skipping duplicate definition id")
			continue
		}
		if rec, ok := r.Get(def.ID); ok {
			records = append(records, rec)
		}
	}
	return records
}

// Reload atomically replaces every record of the given provenance with the
// new batch. Records are built and validated outside the lock; the old set
// is dropped and the new one indexed in a single critical section so readers
// never observe a partially swapped set.
func (r *Registry) Reload(defs []*domain.SourceDefinition, provenance domain.Provenance) {
	records := make([]*RegisteredDefinition, 0, len(defs))
	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if def == nil || strings.TrimSpace(def.ID) == "" {
			continue
		}
		if _, dup := seen[def.ID]; dup {
			log.Debug().Str("definition", def.ID).Msg("Skipping duplicate definition id")
			continue
		}
		seen[def.ID] = struct{}{}

		record := &RegisteredDefinition{
			Definition:       def,
			Provenance:       provenance,
			RegisteredAt:     r.now(),
			Enabled:          true,
			ValidationErrors: Validate(def),
		}
		if !record.Valid() {
			log.Warn().
				Str("definition", def.ID).
				Strs("problems", record.ValidationErrors).
				Msg("Reloaded definition with validation errors")
		}
		records = append(records, record)
	}

	r.mu.Lock()
	for _, id := range r.byProvenance[provenance] {
		if record, ok := r.byID[id]; ok {
			r.byProtocol[record.Definition.Protocol] = removeID(r.byProtocol[record.Definition.Protocol], id)
			delete(r.byID, id)
		}
	}
	r.byProvenance[provenance] = nil

	for _, record := range records {
		id := record.Definition.ID
		if existing, ok := r.byID[id]; ok {
			r.dropFromIndexes(existing)
		}
		r.byID[id] = record
		r.byProtocol[record.Definition.Protocol] = append(r.byProtocol[record.Definition.Protocol], id)
		r.byProvenance[provenance] = append(r.byProvenance[provenance], id)
	}
	r.mu.Unlock()

	log.Info().
		Str("provenance", string(provenance)).
		Int("count", len(records)).
		Msg("Reloaded definitions")
}

// Get returns the record for an id.
func (r *Registry) Get(id string) (*RegisteredDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.byID[id]
	return record, ok
}

// Definition returns the underlying definition for an id when the record is
// valid.
func (r *Registry) Definition(id string) (*domain.SourceDefinition, bool) {
	record, ok := r.Get(id)
	if !ok || !record.Valid() {
		return nil, false
	}
	return record.Definition, true
}

// Query returns every record matching the filter, sorted by definition id.
func (r *Registry) Query(filter Filter) []*RegisteredDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.candidateIDs(filter)

	out := make([]*RegisteredDefinition, 0, len(candidates))
	for _, id := range candidates {
		record, ok := r.byID[id]
		if !ok {
			continue
		}
		if matches(record, filter) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Definition.ID < out[j].Definition.ID
	})
	return out
}

// candidateIDs narrows the scan using the protocol/provenance indexes.
func (r *Registry) candidateIDs(filter Filter) []string {
	if filter.Protocol != "" {
		return r.byProtocol[filter.Protocol]
	}
	if filter.Provenance != "" {
		return r.byProvenance[filter.Provenance]
	}
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}

func matches(record *RegisteredDefinition, filter Filter) bool {
	def := record.Definition
	if filter.Protocol != "" && def.Protocol != filter.Protocol {
		return false
	}
	if filter.Access != "" && def.Access != filter.Access {
		return false
	}
	if filter.AuthMethod != "" && def.AuthMethod() != filter.AuthMethod {
		return false
	}
	if filter.Provenance != "" && record.Provenance != filter.Provenance {
		return false
	}
	if filter.Enabled != nil && record.Enabled != *filter.Enabled {
		return false
	}
	if filter.ValidOnly && !record.Valid() {
		return false
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		s = strings.ToLower(s)
		if !strings.Contains(strings.ToLower(def.ID), s) &&
			!strings.Contains(strings.ToLower(def.Name), s) &&
			!strings.Contains(strings.ToLower(def.Description), s) {
			return false
		}
	}
	return true
}

// Len returns the number of registered records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

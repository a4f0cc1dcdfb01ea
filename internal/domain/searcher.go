// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "context"

// Searcher executes one instance's search. The definition engine is the
// standard implementation; native definitions may register a factory that
// returns a hand-written one.
type Searcher interface {
	Search(ctx context.Context, def *SourceDefinition, instance *SourceInstance, criteria SearchCriteria) ([]Release, error)
	Test(ctx context.Context, def *SourceDefinition, instance *SourceInstance) error
}

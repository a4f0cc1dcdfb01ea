// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package orchestrator fans one logical search out across every eligible
// source instance and gathers a merged result set with per-instance
// diagnostics. One instance's failure never aborts the round.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/autobrr/scour/internal/categories"
	"github.com/autobrr/scour/internal/definitions"
	"github.com/autobrr/scour/internal/domain"
	"github.com/autobrr/scour/internal/health"
	"github.com/autobrr/scour/internal/ratelimit"
	"github.com/autobrr/scour/internal/scrape"
)

// OutcomeStatus is the per-instance verdict for one round. Skipped means the
// instance was never attempted and must not touch health state.
type OutcomeStatus string

const (
	OutcomeOK      OutcomeStatus = "ok"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Failure reasons recorded in diagnostics and the health tracker.
const (
	ReasonTimeout     = "timeout"
	ReasonCancelled   = "cancelled"
	ReasonAuth        = "auth_failed"
	ReasonUpstream    = "upstream_error"
	ReasonParse       = "parse_error"
	ReasonRateLimited = "rate_limited"
	ReasonDisabled    = "backing_off"
	ReasonNotCapable  = "mode_not_supported"
	ReasonNotEnabled  = "disabled"
	ReasonNoDef       = "unknown_definition"
)

// InstanceOutcome records what happened to one instance during a round.
type InstanceOutcome struct {
	InstanceID   int           `json:"instanceId"`
	InstanceName string        `json:"instanceName"`
	Status       OutcomeStatus `json:"status"`
	Reason       string        `json:"reason,omitempty"`
	Elapsed      time.Duration `json:"elapsed,omitempty"`
	Releases     int           `json:"releases"`
}

// SearchResponse is the completed round: merged releases plus one outcome
// per supplied instance. Ordering of results is not guaranteed beyond
// faster instances tending to land first.
type SearchResponse struct {
	Results     []domain.Release  `json:"results"`
	Diagnostics []InstanceOutcome `json:"diagnostics"`
}

// Options tune a single orchestrator.
type Options struct {
	MaxConcurrent        int
	InstanceTimeout      time.Duration
	RateLimitWaitBudget  time.Duration
	FuzzyDedupeThreshold int
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 10
	}
	if o.InstanceTimeout <= 0 {
		o.InstanceTimeout = 30 * time.Second
	}
	if o.RateLimitWaitBudget <= 0 {
		o.RateLimitWaitBudget = 2 * time.Second
	}
	return o
}

// Orchestrator wires the registry, engine, health tracker and rate limiter
// into the scatter-gather search protocol.
type Orchestrator struct {
	registry *definitions.Registry
	engine   domain.Searcher
	tracker  *health.Tracker
	limiter  *ratelimit.Limiter
	opts     Options

	// onDispatch observes in-flight search counts; used to assert the
	// concurrency ceiling in tests.
	onDispatch func(delta int)
}

// New builds an orchestrator.
func New(registry *definitions.Registry, engine domain.Searcher, tracker *health.Tracker, limiter *ratelimit.Limiter, opts Options) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		engine:   engine,
		tracker:  tracker,
		limiter:  limiter,
		opts:     opts.withDefaults(),
	}
}

type instanceResult struct {
	outcome  InstanceOutcome
	releases []domain.Release
}

// Search runs one round. It always completes with whatever succeeded: only
// malformed criteria propagate as an error. Cancellation preserves results
// already gathered and marks in-flight instances failed(cancelled).
func (o *Orchestrator) Search(ctx context.Context, criteria domain.SearchCriteria, instances []*domain.SourceInstance) (*SearchResponse, error) {
	if err := criteria.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search criteria: %w", err)
	}

	resp := &SearchResponse{}

	var runnable []*dispatchTarget
	for _, instance := range instances {
		target, outcome := o.admit(instance, criteria)
		if target == nil {
			resp.Diagnostics = append(resp.Diagnostics, *outcome)
			continue
		}
		runnable = append(runnable, target)
	}

	if len(runnable) == 0 {
		log.Debug().Str("query", criteria.Query).Msg("No eligible instances for search")
		return resp, nil
	}

	sem := semaphore.NewWeighted(int64(o.opts.MaxConcurrent))
	results := make(chan instanceResult, len(runnable))

	var wg sync.WaitGroup
	for _, target := range runnable {
		wg.Add(1)
		go func(target *dispatchTarget) {
			defer wg.Done()
			results <- o.dispatch(ctx, sem, target, criteria)
		}(target)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	dedupe := newDeduper(o.opts.FuzzyDedupeThreshold)
	for result := range results {
		resp.Diagnostics = append(resp.Diagnostics, result.outcome)
		for _, release := range result.releases {
			dedupe.add(release)
		}
	}
	resp.Results = dedupe.results()

	log.Debug().
		Str("query", criteria.Query).
		Int("instances", len(instances)).
		Int("dispatched", len(runnable)).
		Int("results", len(resp.Results)).
		Msg("Search round completed")

	return resp, nil
}

type dispatchTarget struct {
	instance *domain.SourceInstance
	def      *domain.SourceDefinition
	searcher domain.Searcher
}

// admit applies the pre-dispatch filters: enabled, known valid definition,
// capability for the mode, and health eligibility. A nil target means the
// instance sits this round out with the returned outcome.
func (o *Orchestrator) admit(instance *domain.SourceInstance, criteria domain.SearchCriteria) (*dispatchTarget, *InstanceOutcome) {
	skipped := func(reason string) *InstanceOutcome {
		return &InstanceOutcome{
			InstanceID:   instance.ID,
			InstanceName: instance.Name,
			Status:       OutcomeSkipped,
			Reason:       reason,
		}
	}

	if !instance.Enabled {
		return nil, skipped(ReasonNotEnabled)
	}

	record, ok := o.registry.Get(instance.DefinitionID)
	if !ok || !record.Valid() {
		return nil, skipped(ReasonNoDef)
	}
	if !record.Definition.Capabilities.SupportsMode(criteria.Mode) {
		return nil, skipped(ReasonNotCapable)
	}
	if !o.tracker.IsEligible(instance.ID) {
		return nil, skipped(ReasonDisabled)
	}

	searcher := o.engine
	if record.Factory != nil {
		searcher = record.Factory()
	}

	return &dispatchTarget{instance: instance, def: record.Definition, searcher: searcher}, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, sem *semaphore.Weighted, target *dispatchTarget, criteria domain.SearchCriteria) instanceResult {
	instance := target.instance
	outcome := InstanceOutcome{InstanceID: instance.ID, InstanceName: instance.Name}

	// Rate-limit admission happens before a concurrency slot is taken so a
	// throttled instance never starves a runnable one. Denial is a skip,
	// not a failure: health state stays untouched.
	if err := o.limiter.Wait(ctx, instance.ID, o.opts.RateLimitWaitBudget); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome.Status = OutcomeFailed
			outcome.Reason = ReasonCancelled
			return instanceResult{outcome: outcome}
		}
		log.Debug().Int("instance_id", instance.ID).Str("instance", instance.Name).Msg("Rate limit budget exhausted, skipping instance")
		outcome.Status = OutcomeSkipped
		outcome.Reason = ReasonRateLimited
		return instanceResult{outcome: outcome}
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		outcome.Status = OutcomeFailed
		outcome.Reason = ReasonCancelled
		return instanceResult{outcome: outcome}
	}
	defer sem.Release(1)

	if o.onDispatch != nil {
		o.onDispatch(1)
		defer o.onDispatch(-1)
	}

	timeout := o.opts.InstanceTimeout
	if instance.TimeoutSeconds > 0 {
		timeout = instance.Timeout()
	}
	searchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	releases, err := target.searcher.Search(searchCtx, target.def, instance, criteria)
	outcome.Elapsed = time.Since(start)

	if err != nil {
		reason := classify(ctx, searchCtx, err)
		outcome.Status = OutcomeFailed
		outcome.Reason = reason

		// Round-level cancellation is not the instance's fault.
		if reason != ReasonCancelled {
			o.tracker.RecordFailure(instance.ID, reason)
		}

		log.Debug().
			Err(err).
			Int("instance_id", instance.ID).
			Str("instance", instance.Name).
			Str("reason", reason).
			Msg("Instance search failed")
		return instanceResult{outcome: outcome}
	}

	o.tracker.RecordSuccess(instance.ID, outcome.Elapsed)

	releases = o.finalize(releases, criteria)
	outcome.Status = OutcomeOK
	outcome.Releases = len(releases)
	return instanceResult{outcome: outcome, releases: releases}
}

// finalize canonicalizes release categories and applies the criteria's
// category filter. Releases without any mapped category pass the filter.
// The filter ids stay exactly as supplied: normalizing a release pulls its
// ancestors in, so a broad filter like Movies matches every subcategory,
// while a subcategory filter never admits siblings.
func (o *Orchestrator) finalize(releases []domain.Release, criteria domain.SearchCriteria) []domain.Release {
	if len(releases) == 0 {
		return releases
	}

	wanted := make(map[int]struct{}, len(criteria.Categories))
	for _, id := range criteria.Categories {
		wanted[id] = struct{}{}
	}

	out := releases[:0]
	for _, release := range releases {
		release.Categories = categories.Normalize(release.Categories)
		if len(wanted) > 0 && len(release.Categories) > 0 && !intersects(release.Categories, wanted) {
			continue
		}
		out = append(out, release)
	}
	return out
}

func intersects(ids []int, wanted map[int]struct{}) bool {
	for _, id := range ids {
		if _, ok := wanted[id]; ok {
			return true
		}
	}
	return false
}

// classify maps an instance error to a diagnostics reason.
func classify(roundCtx, searchCtx context.Context, err error) string {
	switch {
	case roundCtx.Err() != nil:
		return ReasonCancelled
	case errors.Is(err, context.DeadlineExceeded) || searchCtx.Err() == context.DeadlineExceeded:
		return ReasonTimeout
	case errors.Is(err, scrape.ErrAuthFailed):
		return ReasonAuth
	default:
		var upstream *scrape.UpstreamError
		if errors.As(err, &upstream) {
			return ReasonUpstream
		}
		var parseErr *scrape.ParseError
		if errors.As(err, &parseErr) {
			return ReasonParse
		}
		return "error"
	}
}

// TestInstance validates configuration by running login plus a trivial
// search. It bypasses health tracking and rate limiting so a test never
// counts toward production state.
func (o *Orchestrator) TestInstance(ctx context.Context, instance *domain.SourceInstance) error {
	record, ok := o.registry.Get(instance.DefinitionID)
	if !ok {
		return fmt.Errorf("unknown definition %q", instance.DefinitionID)
	}
	if !record.Valid() {
		return fmt.Errorf("definition %q has validation errors: %v", instance.DefinitionID, record.ValidationErrors)
	}

	searcher := o.engine
	if record.Factory != nil {
		searcher = record.Factory()
	}

	testCtx, cancel := context.WithTimeout(ctx, o.opts.InstanceTimeout)
	defer cancel()

	return searcher.Test(testCtx, record.Definition, instance)
}

// Health exposes the tracker's snapshot for diagnostics surfaces.
func (o *Orchestrator) Health() []health.Status {
	return o.tracker.All()
}

// ResetHealth clears one instance's failure history.
func (o *Orchestrator) ResetHealth(instanceID int) {
	o.tracker.Reset(instanceID)
}

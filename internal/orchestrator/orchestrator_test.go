// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/scour/internal/categories"
	"github.com/autobrr/scour/internal/definitions"
	"github.com/autobrr/scour/internal/domain"
	"github.com/autobrr/scour/internal/health"
	"github.com/autobrr/scour/internal/ratelimit"
	"github.com/autobrr/scour/internal/scrape"
)

type fakeSearcher struct {
	search func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error)
	test   func(ctx context.Context, instance *domain.SourceInstance) error
}

func (f *fakeSearcher) Search(ctx context.Context, def *domain.SourceDefinition, instance *domain.SourceInstance, criteria domain.SearchCriteria) ([]domain.Release, error) {
	return f.search(ctx, instance)
}

func (f *fakeSearcher) Test(ctx context.Context, def *domain.SourceDefinition, instance *domain.SourceInstance) error {
	if f.test != nil {
		return f.test(ctx, instance)
	}
	return nil
}

func registryWith(t *testing.T, ids ...string) *definitions.Registry {
	t.Helper()
	r := definitions.NewRegistry()
	for _, id := range ids {
		def := &domain.SourceDefinition{
			ID:       id,
			Name:     id,
			Protocol: domain.ProtocolTorrent,
			Access:   domain.AccessPublic,
			BaseURLs: []string{"https://" + id + ".example/"},
			Capabilities: domain.Capabilities{
				SearchModes: []domain.SearchMode{domain.SearchModeGeneral, domain.SearchModeTV},
			},
			Search: []domain.SearchRule{{Mode: domain.SearchModeGeneral, Path: "/search"}},
			Parse: domain.ParseRule{
				Type: domain.ResponseTypeHTML,
				Rows: "tr",
				Fields: map[string]domain.FieldSelector{
					domain.FieldTitle:  {Selector: "td.name"},
					domain.FieldMagnet: {Selector: "a", Attribute: "href"},
				},
			},
		}
		require.True(t, r.Register(def, domain.ProvenanceBuiltin, definitions.RegisterOptions{}))
	}
	return r
}

func instanceFor(id int, defID string) *domain.SourceInstance {
	return &domain.SourceInstance{
		ID:           id,
		DefinitionID: defID,
		Name:         defID,
		Enabled:      true,
	}
}

func release(title, hash string, size int64, sourceID int) domain.Release {
	return domain.Release{
		Title:     title,
		Protocol:  domain.ProtocolTorrent,
		InfoHash:  hash,
		MagnetURI: "magnet:?xt=urn:btih:" + hash,
		Size:      size,
		SourceIDs: []int{sourceID},
	}
}

func newOrchestrator(registry *definitions.Registry, searcher domain.Searcher, opts Options) *Orchestrator {
	tracker := health.NewTracker(health.DefaultBackoffPolicy(), nil)
	limiter := ratelimit.New(100, time.Second)
	return New(registry, searcher, tracker, limiter, opts)
}

func TestSearchPartialFailure(t *testing.T) {
	registry := registryWith(t, "good", "bad")

	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		if instance.DefinitionID == "bad" {
			return nil, &scrape.UpstreamError{StatusCode: 502}
		}
		return []domain.Release{release("Some.Show.S01E01.1080p", "aaa", 1000, instance.ID)}, nil
	}}

	o := newOrchestrator(registry, searcher, Options{})
	resp, err := o.Search(context.Background(), domain.SearchCriteria{Query: "some show"}, []*domain.SourceInstance{
		instanceFor(1, "good"),
		instanceFor(2, "bad"),
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Some.Show.S01E01.1080p", resp.Results[0].Title)

	outcomes := outcomesByID(resp)
	assert.Equal(t, OutcomeOK, outcomes[1].Status)
	assert.Equal(t, OutcomeFailed, outcomes[2].Status)
	assert.Equal(t, ReasonUpstream, outcomes[2].Reason)

	// The failure is recorded against health.
	status, ok := o.tracker.Status(2)
	require.True(t, ok)
	assert.Equal(t, 1, status.ConsecutiveFailures)
}

func TestSearchAllFailedStillSucceeds(t *testing.T) {
	registry := registryWith(t, "a", "b")

	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		return nil, &scrape.AuthError{Reason: "bad cookie"}
	}}

	o := newOrchestrator(registry, searcher, Options{})
	resp, err := o.Search(context.Background(), domain.SearchCriteria{Query: "anything"}, []*domain.SourceInstance{
		instanceFor(1, "a"),
		instanceFor(2, "b"),
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	require.Len(t, resp.Diagnostics, 2)
	for _, outcome := range resp.Diagnostics {
		assert.Equal(t, OutcomeFailed, outcome.Status)
		assert.Equal(t, ReasonAuth, outcome.Reason)
	}
}

func TestSearchInvalidCriteria(t *testing.T) {
	o := newOrchestrator(registryWith(t, "a"), &fakeSearcher{}, Options{})

	_, err := o.Search(context.Background(), domain.SearchCriteria{}, nil)
	assert.Error(t, err)

	episode := 3
	_, err = o.Search(context.Background(), domain.SearchCriteria{Query: "x", Episode: &episode}, nil)
	assert.Error(t, err)
}

func TestSearchDedupesByInfoHash(t *testing.T) {
	registry := registryWith(t, "one", "two")

	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		return []domain.Release{release("Same.Release.1080p", "f00d", 5000, instance.ID)}, nil
	}}

	o := newOrchestrator(registry, searcher, Options{})
	resp, err := o.Search(context.Background(), domain.SearchCriteria{Query: "same"}, []*domain.SourceInstance{
		instanceFor(1, "one"),
		instanceFor(2, "two"),
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.ElementsMatch(t, []int{1, 2}, resp.Results[0].SourceIDs)
}

func TestSearchDedupesByNormalizedTitleAndSize(t *testing.T) {
	registry := registryWith(t, "one", "two")

	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		title := "The.Matrix.1999.1080p"
		if instance.ID == 2 {
			title = "The Matrix 1999 1080p"
		}
		r := release(title, "", 4096, instance.ID)
		return []domain.Release{r}, nil
	}}

	o := newOrchestrator(registry, searcher, Options{})
	resp, err := o.Search(context.Background(), domain.SearchCriteria{Query: "matrix"}, []*domain.SourceInstance{
		instanceFor(1, "one"),
		instanceFor(2, "two"),
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.ElementsMatch(t, []int{1, 2}, resp.Results[0].SourceIDs)
}

func TestSearchDifferentHashesNotMerged(t *testing.T) {
	registry := registryWith(t, "one", "two")

	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		hash := "aaa"
		if instance.ID == 2 {
			hash = "bbb"
		}
		return []domain.Release{release("Same Title", hash, 100, instance.ID)}, nil
	}}

	o := newOrchestrator(registry, searcher, Options{})
	resp, err := o.Search(context.Background(), domain.SearchCriteria{Query: "same"}, []*domain.SourceInstance{
		instanceFor(1, "one"),
		instanceFor(2, "two"),
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestSearchSkipsBackedOffInstance(t *testing.T) {
	registry := registryWith(t, "flaky", "steady")

	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		return []domain.Release{release("Title", "cc"+instance.Name, 10, instance.ID)}, nil
	}}

	o := newOrchestrator(registry, searcher, Options{})
	for i := 0; i < 5; i++ {
		o.tracker.RecordFailure(1, ReasonTimeout)
	}

	resp, err := o.Search(context.Background(), domain.SearchCriteria{Query: "q"}, []*domain.SourceInstance{
		instanceFor(1, "flaky"),
		instanceFor(2, "steady"),
	})
	require.NoError(t, err)

	outcomes := outcomesByID(resp)
	assert.Equal(t, OutcomeSkipped, outcomes[1].Status)
	assert.Equal(t, ReasonDisabled, outcomes[1].Reason)
	assert.Equal(t, OutcomeOK, outcomes[2].Status)

	// Skipping must not deepen the failure streak.
	status, _ := o.tracker.Status(1)
	assert.Equal(t, 5, status.ConsecutiveFailures)
}

func TestSearchSkipsRateLimitedInstance(t *testing.T) {
	registry := registryWith(t, "limited")

	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		return nil, nil
	}}

	tracker := health.NewTracker(health.DefaultBackoffPolicy(), nil)
	limiter := ratelimit.New(1, 10*time.Second)
	o := New(registry, searcher, tracker, limiter, Options{RateLimitWaitBudget: 50 * time.Millisecond})

	instances := []*domain.SourceInstance{instanceFor(1, "limited")}

	resp, err := o.Search(context.Background(), domain.SearchCriteria{Query: "q"}, instances)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, resp.Diagnostics[0].Status)

	resp, err = o.Search(context.Background(), domain.SearchCriteria{Query: "q"}, instances)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, resp.Diagnostics[0].Status)
	assert.Equal(t, ReasonRateLimited, resp.Diagnostics[0].Reason)

	// Rate-limit skips leave health untouched.
	_, tracked := tracker.Status(1)
	assert.True(t, tracked)
	status, _ := tracker.Status(1)
	assert.Equal(t, 0, status.ConsecutiveFailures)
}

func TestSearchSkipsIncapableAndUnknown(t *testing.T) {
	registry := registryWith(t, "generalonly")
	rec, _ := registry.Get("generalonly")
	rec.Definition.Capabilities.SearchModes = []domain.SearchMode{domain.SearchModeGeneral}

	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		return nil, nil
	}}
	o := newOrchestrator(registry, searcher, Options{})

	disabled := instanceFor(3, "generalonly")
	disabled.Enabled = false

	season := 1
	resp, err := o.Search(context.Background(), domain.SearchCriteria{Mode: domain.SearchModeTV, Query: "show", Season: &season}, []*domain.SourceInstance{
		instanceFor(1, "generalonly"),
		instanceFor(2, "missing"),
		disabled,
	})
	require.NoError(t, err)

	outcomes := outcomesByID(resp)
	assert.Equal(t, ReasonNotCapable, outcomes[1].Reason)
	assert.Equal(t, ReasonNoDef, outcomes[2].Reason)
	assert.Equal(t, ReasonNotEnabled, outcomes[3].Reason)
	for _, outcome := range resp.Diagnostics {
		assert.Equal(t, OutcomeSkipped, outcome.Status)
	}
}

func TestSearchConcurrencyCeiling(t *testing.T) {
	ids := []string{"s1", "s2", "s3", "s4", "s5", "s6"}
	registry := registryWith(t, ids...)

	var mu sync.Mutex
	inflight, peak := 0, 0

	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, nil
	}}

	o := newOrchestrator(registry, searcher, Options{MaxConcurrent: 2})
	o.onDispatch = func(delta int) {
		mu.Lock()
		defer mu.Unlock()
		inflight += delta
		if inflight > peak {
			peak = inflight
		}
	}

	instances := make([]*domain.SourceInstance, len(ids))
	for i, id := range ids {
		instances[i] = instanceFor(i+1, id)
	}

	_, err := o.Search(context.Background(), domain.SearchCriteria{Query: "q"}, instances)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
	assert.Equal(t, 0, inflight)
}

func TestSearchTimeoutRecordedAsFailure(t *testing.T) {
	registry := registryWith(t, "slow")

	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	o := newOrchestrator(registry, searcher, Options{InstanceTimeout: 50 * time.Millisecond})
	resp, err := o.Search(context.Background(), domain.SearchCriteria{Query: "q"}, []*domain.SourceInstance{instanceFor(1, "slow")})
	require.NoError(t, err)

	require.Len(t, resp.Diagnostics, 1)
	assert.Equal(t, OutcomeFailed, resp.Diagnostics[0].Status)
	assert.Equal(t, ReasonTimeout, resp.Diagnostics[0].Reason)

	status, ok := o.tracker.Status(1)
	require.True(t, ok)
	assert.Equal(t, 1, status.ConsecutiveFailures)
}

func TestSearchCancellationPreservesPartialResults(t *testing.T) {
	registry := registryWith(t, "fast", "stuck")

	fastDone := make(chan struct{})
	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		if instance.DefinitionID == "fast" {
			defer close(fastDone)
			return []domain.Release{release("Fast Result", "abc", 50, instance.ID)}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-fastDone
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	o := newOrchestrator(registry, searcher, Options{})
	resp, err := o.Search(ctx, domain.SearchCriteria{Query: "q"}, []*domain.SourceInstance{
		instanceFor(1, "fast"),
		instanceFor(2, "stuck"),
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Fast Result", resp.Results[0].Title)

	outcomes := outcomesByID(resp)
	assert.Equal(t, OutcomeOK, outcomes[1].Status)
	assert.Equal(t, OutcomeFailed, outcomes[2].Status)
	assert.Equal(t, ReasonCancelled, outcomes[2].Reason)

	// Cancellation is not the stuck instance's fault.
	_, tracked := o.tracker.Status(2)
	assert.False(t, tracked)
}

func TestSearchCategoryFilter(t *testing.T) {
	registry := registryWith(t, "mixed")

	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		movie := release("Movie.2024.2160p", "m1", 1, instance.ID)
		movie.Categories = []int{categories.MoviesUHD}
		show := release("Show.S01E01", "t1", 2, instance.ID)
		show.Categories = []int{categories.TVHD}
		return []domain.Release{movie, show}, nil
	}}

	o := newOrchestrator(registry, searcher, Options{})
	resp, err := o.Search(context.Background(), domain.SearchCriteria{
		Query:      "q",
		Categories: []int{categories.Movies},
	}, []*domain.SourceInstance{instanceFor(1, "mixed")})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Movie.2024.2160p", resp.Results[0].Title)
	// Parent id was added during canonicalization.
	assert.Contains(t, resp.Results[0].Categories, categories.Movies)
}

func TestSearchSubcategoryFilterExcludesSiblings(t *testing.T) {
	registry := registryWith(t, "mixed")

	searcher := &fakeSearcher{search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
		uhd := release("Movie.2024.2160p", "m1", 1, instance.ID)
		uhd.Categories = []int{categories.MoviesUHD}
		sd := release("Movie.2024.480p", "m2", 2, instance.ID)
		sd.Categories = []int{categories.MoviesSD}
		return []domain.Release{uhd, sd}, nil
	}}

	o := newOrchestrator(registry, searcher, Options{})
	resp, err := o.Search(context.Background(), domain.SearchCriteria{
		Query:      "q",
		Categories: []int{categories.MoviesUHD},
	}, []*domain.SourceInstance{instanceFor(1, "mixed")})
	require.NoError(t, err)

	// The SD sibling shares the Movies parent after canonicalization but
	// must not pass a Movies/UHD filter.
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Movie.2024.2160p", resp.Results[0].Title)
}

func TestTestInstanceBypassesHealth(t *testing.T) {
	registry := registryWith(t, "target")

	called := false
	searcher := &fakeSearcher{
		search: func(ctx context.Context, instance *domain.SourceInstance) ([]domain.Release, error) {
			return nil, nil
		},
		test: func(ctx context.Context, instance *domain.SourceInstance) error {
			called = true
			return errors.New("bad credentials")
		},
	}

	o := newOrchestrator(registry, searcher, Options{})
	err := o.TestInstance(context.Background(), instanceFor(1, "target"))
	require.Error(t, err)
	assert.True(t, called)

	// A failed test leaves production health untouched.
	_, tracked := o.tracker.Status(1)
	assert.False(t, tracked)
	assert.True(t, o.tracker.IsEligible(1))
}

func TestTestInstanceUnknownDefinition(t *testing.T) {
	o := newOrchestrator(registryWith(t, "known"), &fakeSearcher{}, Options{})
	err := o.TestInstance(context.Background(), instanceFor(1, "nope"))
	assert.Error(t, err)
}

func outcomesByID(resp *SearchResponse) map[int]InstanceOutcome {
	out := make(map[int]InstanceOutcome, len(resp.Diagnostics))
	for _, outcome := range resp.Diagnostics {
		out[outcome.InstanceID] = outcome
	}
	return out
}

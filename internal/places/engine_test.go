package places

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/clock"
	"github.com/gustavodarosa/KidGo/pkg/eventloop"
	"github.com/gustavodarosa/KidGo/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var bias = &geo.Coordinate{Latitude: -23.561, Longitude: -46.656}

type engineHarness struct {
	loop     *eventloop.Loop
	clock    *clock.Manual
	backend  *mockBackend
	tokens   *TokenManager
	engine   *Engine
	resolver *Resolver
	updates  chan SearchUpdate
	resolved chan Resolution
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()
	loop := eventloop.New(context.Background())
	t.Cleanup(loop.Close)

	h := &engineHarness{
		loop:     loop,
		clock:    clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		backend:  newMockBackend(ProviderGoogle),
		updates:  make(chan SearchUpdate, 32),
		resolved: make(chan Resolution, 8),
	}
	h.tokens = NewTokenManager(h.clock)
	h.engine = NewEngine(loop, h.clock, h.backend, h.tokens, EngineConfig{}, func(u SearchUpdate) { h.updates <- u })
	h.resolver = NewResolver(loop, h.backend, h.engine, h.tokens, "", func(r Resolution) { h.resolved <- r })
	return h
}

func (h *engineHarness) do(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, h.loop.Call(context.Background(), fn))
}

func (h *engineHarness) search(t *testing.T, field Field, q string) {
	t.Helper()
	h.do(t, func() { h.engine.Search(field, q, bias) })
}

func (h *engineHarness) next(t *testing.T) SearchUpdate {
	t.Helper()
	select {
	case u := <-h.updates:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for search update")
		return SearchUpdate{}
	}
}

func (h *engineHarness) noUpdate(t *testing.T) {
	t.Helper()
	select {
	case u := <-h.updates:
		t.Fatalf("unexpected search update for %q (seq %d)", u.Query, u.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *engineHarness) suggestions(t *testing.T, field Field) []PlaceSuggestion {
	t.Helper()
	var out []PlaceSuggestion
	h.do(t, func() { out = h.engine.Suggestions(field) })
	return out
}

// block returns a mock Run hook that signals started and then waits for release.
func block(started, release chan struct{}) func(mock.Arguments) {
	return func(mock.Arguments) {
		started <- struct{}{}
		<-release
	}
}

func waitStarted(t *testing.T, started chan struct{}) {
	t.Helper()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("backend call never started")
	}
}

func TestEngine_ShortQuerySendsNothing(t *testing.T) {
	h := newEngineHarness(t)

	h.search(t, FieldDestination, "Es")

	u := h.next(t)
	assert.Empty(t, u.Suggestions)
	assert.NoError(t, u.Err)
	assert.Equal(t, 0, h.clock.Pending())
	h.backend.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestEngine_ShortQueryCountsRunesAfterTrim(t *testing.T) {
	h := newEngineHarness(t)
	h.backend.On("Search", mock.Anything, query("São")).Return([]PlaceSuggestion{}, nil)

	h.search(t, FieldDestination, "  Sã  ")
	h.next(t)
	assert.Equal(t, 0, h.clock.Pending())

	h.search(t, FieldDestination, " São ")
	assert.Equal(t, 1, h.clock.Pending())
	h.clock.Advance(DefaultDebounce)
	h.next(t)
	h.backend.AssertNumberOfCalls(t, "Search", 1)
}

func TestEngine_DebounceSendsOnlyLatestQuery(t *testing.T) {
	h := newEngineHarness(t)
	h.backend.On("Search", mock.Anything, query("Escola")).Return([]PlaceSuggestion{suggestion("p1", -23.55, -46.63)}, nil)

	h.search(t, FieldDestination, "Esc")
	h.clock.Advance(200 * time.Millisecond)
	h.search(t, FieldDestination, "Escola")
	h.clock.Advance(200 * time.Millisecond)
	h.noUpdate(t)
	h.clock.Advance(300 * time.Millisecond)

	u := h.next(t)
	assert.Equal(t, "Escola", u.Query)
	require.Len(t, u.Suggestions, 1)
	h.backend.AssertNumberOfCalls(t, "Search", 1)
	h.backend.AssertNotCalled(t, "Search", mock.Anything, query("Esc"))
}

func TestEngine_RanksAndStampsToken(t *testing.T) {
	h := newEngineHarness(t)
	h.backend.On("Search", mock.Anything, mock.MatchedBy(func(r SearchRequest) bool {
		return r.Query == "Padaria" && r.Bias != nil && r.RadiusMeters == DefaultRadiusMeters &&
			r.Language == DefaultLanguage && r.SessionToken != ""
	})).Return([]PlaceSuggestion{
		{ID: "unknown"},
		suggestion("far", -23.450, -46.530),
		suggestion("near", -23.562, -46.657),
	}, nil)

	h.search(t, FieldDestination, "Padaria")
	h.clock.Advance(DefaultDebounce)
	u := h.next(t)

	require.Len(t, u.Suggestions, 3)
	assert.Equal(t, "near", u.Suggestions[0].ID)
	assert.Equal(t, "far", u.Suggestions[1].ID)
	assert.Equal(t, "unknown", u.Suggestions[2].ID)

	var token string
	h.do(t, func() {
		s, ok := h.tokens.Current()
		require.True(t, ok)
		token = s.Token
	})
	for _, s := range u.Suggestions {
		assert.Equal(t, token, s.SessionToken)
	}
}

func TestEngine_StaleResponseIsDiscarded(t *testing.T) {
	h := newEngineHarness(t)
	started, release := make(chan struct{}), make(chan struct{})
	h.backend.On("Search", mock.Anything, query("Escola")).Run(block(started, release)).
		Return([]PlaceSuggestion{suggestion("old", 1, 1)}, nil)
	h.backend.On("Search", mock.Anything, query("Escola Estadual")).
		Return([]PlaceSuggestion{suggestion("new", 2, 2)}, nil)

	h.search(t, FieldDestination, "Escola")
	h.clock.Advance(DefaultDebounce)
	waitStarted(t, started)

	h.search(t, FieldDestination, "Escola Estadual")
	h.clock.Advance(DefaultDebounce)
	u := h.next(t)
	assert.Equal(t, "new", u.Suggestions[0].ID)

	close(release)
	h.noUpdate(t)

	current := h.suggestions(t, FieldDestination)
	require.Len(t, current, 1)
	assert.Equal(t, "new", current[0].ID)
}

func TestEngine_ShortQueryInvalidatesInFlight(t *testing.T) {
	h := newEngineHarness(t)
	started, release := make(chan struct{}), make(chan struct{})
	h.backend.On("Search", mock.Anything, query("Escola")).Run(block(started, release)).
		Return([]PlaceSuggestion{suggestion("old", 1, 1)}, nil)

	h.search(t, FieldDestination, "Escola")
	h.clock.Advance(DefaultDebounce)
	waitStarted(t, started)

	h.search(t, FieldDestination, "Es")
	assert.Empty(t, h.next(t).Suggestions)

	close(release)
	h.noUpdate(t)
	assert.Empty(t, h.suggestions(t, FieldDestination))
}

func TestEngine_FieldsAreIndependent(t *testing.T) {
	h := newEngineHarness(t)
	h.backend.On("Search", mock.Anything, query("Casa")).Return([]PlaceSuggestion{suggestion("home", 1, 1)}, nil)
	h.backend.On("Search", mock.Anything, query("Escola")).Return([]PlaceSuggestion{suggestion("school", 2, 2)}, nil)

	h.search(t, FieldOrigin, "Casa")
	h.search(t, FieldDestination, "Escola")
	h.clock.Advance(DefaultDebounce)

	got := map[Field]string{}
	for i := 0; i < 2; i++ {
		u := h.next(t)
		got[u.Field] = u.Suggestions[0].ID
	}
	assert.Equal(t, "home", got[FieldOrigin])
	assert.Equal(t, "school", got[FieldDestination])
}

func TestEngine_TokenStableAcrossSearches(t *testing.T) {
	h := newEngineHarness(t)
	h.backend.On("Search", mock.Anything, mock.Anything).Return([]PlaceSuggestion{suggestion("p", 1, 1)}, nil)

	tokens := map[string]struct{}{}
	for _, q := range []string{"Esc", "Esco", "Escola"} {
		h.search(t, FieldDestination, q)
		h.clock.Advance(DefaultDebounce)
		u := h.next(t)
		tokens[u.Suggestions[0].SessionToken] = struct{}{}
	}

	assert.Len(t, tokens, 1)
	h.backend.AssertNumberOfCalls(t, "Search", 3)
}

func TestEngine_ConfigFailureIsNotRetryable(t *testing.T) {
	h := newEngineHarness(t)
	h.backend.On("Search", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: REQUEST_DENIED", ErrSearchConfig))

	h.search(t, FieldDestination, "Escola")
	h.clock.Advance(DefaultDebounce)
	u := h.next(t)
	assert.ErrorIs(t, u.Err, ErrSearchConfig)
	assert.Empty(t, u.Suggestions)

	var retried bool
	h.do(t, func() { retried = h.engine.Retry(FieldDestination) })
	assert.False(t, retried)
	h.backend.AssertNumberOfCalls(t, "Search", 1)
}

func TestEngine_TransientFailureRetriesImmediately(t *testing.T) {
	h := newEngineHarness(t)
	h.backend.On("Search", mock.Anything, query("Escola")).Return(nil, fmt.Errorf("%w: HTTP 503", ErrSearchTransient)).Once()
	h.backend.On("Search", mock.Anything, query("Escola")).Return([]PlaceSuggestion{suggestion("p1", 1, 1)}, nil).Once()

	h.search(t, FieldDestination, "Escola")
	h.clock.Advance(DefaultDebounce)
	u := h.next(t)
	assert.ErrorIs(t, u.Err, ErrSearchTransient)
	assert.True(t, Retryable(u.Err))

	var retried bool
	h.do(t, func() { retried = h.engine.Retry(FieldDestination) })
	require.True(t, retried)

	u = h.next(t)
	assert.NoError(t, u.Err)
	require.Len(t, u.Suggestions, 1)
	h.backend.AssertNumberOfCalls(t, "Search", 2)
}

func TestEngine_ZeroResultsIsEmptyList(t *testing.T) {
	h := newEngineHarness(t)
	h.backend.On("Search", mock.Anything, mock.Anything).Return([]PlaceSuggestion{}, nil)

	h.search(t, FieldDestination, "zzzzzz")
	h.clock.Advance(DefaultDebounce)
	u := h.next(t)

	assert.NoError(t, u.Err)
	assert.NotNil(t, u.Suggestions)
	assert.Empty(t, u.Suggestions)
}

func TestEngine_ClearCancelsPendingDebounce(t *testing.T) {
	h := newEngineHarness(t)

	h.search(t, FieldDestination, "Escola")
	h.do(t, func() { h.engine.Clear(FieldDestination) })
	h.next(t)
	h.clock.Advance(DefaultDebounce)

	h.noUpdate(t)
	h.backend.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

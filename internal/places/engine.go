package places

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gustavodarosa/KidGo/pkg/clock"
	"github.com/gustavodarosa/KidGo/pkg/eventloop"
	"github.com/gustavodarosa/KidGo/pkg/geo"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"go.uber.org/zap"
)

const (
	DefaultDebounce       = 500 * time.Millisecond
	DefaultMinQueryLength = 3
	DefaultRadiusMeters   = 5000
	DefaultLanguage       = "pt-BR"
)

// EngineConfig tunes search dispatch.
type EngineConfig struct {
	Debounce       time.Duration
	MinQueryLength int
	RadiusMeters   int
	Language       string
	Region         string
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.MinQueryLength <= 0 {
		c.MinQueryLength = DefaultMinQueryLength
	}
	if c.RadiusMeters <= 0 {
		c.RadiusMeters = DefaultRadiusMeters
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	return c
}

// SearchUpdate is the visible search state of a field after a change.
type SearchUpdate struct {
	Field       Field             `json:"field"`
	Query       string            `json:"query"`
	Seq         uint64            `json:"seq"`
	Suggestions []PlaceSuggestion `json:"suggestions"`
	Err         error             `json:"-"`
}

type fieldSearch struct {
	// seq is bumped on every dispatch and every invalidation; a completion
	// applies only if it still matches.
	seq uint64
	// gen is bumped on every keystroke so that a debounce callback already
	// posted to the loop can tell it has been superseded.
	gen   uint64
	timer clock.Timer

	query       string
	bias        *geo.Coordinate
	suggestions []PlaceSuggestion
	err         error
}

// Engine runs debounced, sequenced text searches per field. Every method
// must be called on the session loop.
type Engine struct {
	loop     *eventloop.Loop
	clock    clock.Clock
	backend  Backend
	tokens   *TokenManager
	cfg      EngineConfig
	onUpdate func(SearchUpdate)

	fields map[Field]*fieldSearch
}

// NewEngine wires an engine to a backend and the session token manager.
func NewEngine(loop *eventloop.Loop, clk clock.Clock, backend Backend, tokens *TokenManager, cfg EngineConfig, onUpdate func(SearchUpdate)) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	if onUpdate == nil {
		onUpdate = func(SearchUpdate) {}
	}
	return &Engine{
		loop:     loop,
		clock:    clk,
		backend:  backend,
		tokens:   tokens,
		cfg:      cfg.withDefaults(),
		onUpdate: onUpdate,
		fields:   make(map[Field]*fieldSearch),
	}
}

// Search records a keystroke. Short queries clear the field at once; longer
// ones are dispatched after the debounce window if no newer keystroke arrives.
func (e *Engine) Search(field Field, query string, bias *geo.Coordinate) {
	fs := e.field(field)
	fs.gen++
	e.stopTimer(fs)

	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < e.cfg.MinQueryLength {
		e.reset(field, fs)
		return
	}

	gen := fs.gen
	fs.timer = e.clock.AfterFunc(e.cfg.Debounce, func() {
		e.loop.Post(func() {
			if fs.gen != gen {
				return
			}
			fs.timer = nil
			e.dispatch(field, fs, q, bias)
		})
	})
}

// Retry reissues the last dispatched query for field immediately. It reports
// false when there is nothing retryable.
func (e *Engine) Retry(field Field) bool {
	fs := e.field(field)
	if fs.query == "" || fs.timer != nil || errors.Is(fs.err, ErrSearchConfig) {
		return false
	}
	fs.gen++
	e.dispatch(field, fs, fs.query, fs.bias)
	return true
}

// Clear drops the field's suggestions and invalidates pending work.
func (e *Engine) Clear(field Field) {
	fs := e.field(field)
	fs.gen++
	e.stopTimer(fs)
	e.reset(field, fs)
}

// Suggestions returns the visible suggestions for field.
func (e *Engine) Suggestions(field Field) []PlaceSuggestion {
	return e.field(field).suggestions
}

// Suggestion looks up a visible suggestion by place ID.
func (e *Engine) Suggestion(field Field, placeID string) (PlaceSuggestion, bool) {
	for _, s := range e.field(field).suggestions {
		if s.ID == placeID {
			return s, true
		}
	}
	return PlaceSuggestion{}, false
}

// Err returns the last search failure for field.
func (e *Engine) Err(field Field) error {
	return e.field(field).err
}

// Stop cancels every pending debounce timer.
func (e *Engine) Stop() {
	for _, fs := range e.fields {
		fs.gen++
		e.stopTimer(fs)
	}
}

func (e *Engine) field(f Field) *fieldSearch {
	fs, ok := e.fields[f]
	if !ok {
		fs = &fieldSearch{}
		e.fields[f] = fs
	}
	return fs
}

func (e *Engine) stopTimer(fs *fieldSearch) {
	if fs.timer != nil {
		fs.timer.Stop()
		fs.timer = nil
	}
}

func (e *Engine) reset(field Field, fs *fieldSearch) {
	fs.seq++
	fs.query = ""
	fs.bias = nil
	fs.suggestions = nil
	fs.err = nil
	e.onUpdate(SearchUpdate{Field: field, Seq: fs.seq, Suggestions: []PlaceSuggestion{}})
}

func (e *Engine) dispatch(field Field, fs *fieldSearch, query string, bias *geo.Coordinate) {
	fs.seq++
	seq := fs.seq
	fs.query = query
	fs.bias = bias

	token := e.tokens.Start().Token
	req := SearchRequest{
		Query:        query,
		Bias:         bias,
		RadiusMeters: e.cfg.RadiusMeters,
		Language:     e.cfg.Language,
		Region:       e.cfg.Region,
		SessionToken: token,
	}

	logger.DebugContext(e.loop.Context(), "dispatching place search",
		zap.String("field", string(field)),
		zap.Uint64("seq", seq),
		zap.String("query", query),
	)

	backend := e.backend
	eventloop.Dispatch(e.loop, "places.search", func(ctx context.Context) ([]PlaceSuggestion, error) {
		return backend.Search(ctx, req)
	}, func(results []PlaceSuggestion, err error) {
		e.complete(field, seq, query, bias, token, results, err)
	})
}

func (e *Engine) complete(field Field, seq uint64, query string, bias *geo.Coordinate, token string, results []PlaceSuggestion, err error) {
	fs := e.field(field)
	if seq != fs.seq {
		logger.DebugContext(e.loop.Context(), "discarding stale place search",
			zap.String("field", string(field)),
			zap.Uint64("seq", seq),
			zap.Uint64("latest", fs.seq),
		)
		return
	}

	if err != nil {
		fs.suggestions = nil
		fs.err = err
		e.onUpdate(SearchUpdate{Field: field, Query: query, Seq: seq, Suggestions: []PlaceSuggestion{}, Err: err})
		return
	}

	ranked := Rank(results, bias)
	for i := range ranked {
		ranked[i].SessionToken = token
	}
	fs.suggestions = ranked
	fs.err = nil
	e.onUpdate(SearchUpdate{Field: field, Query: query, Seq: seq, Suggestions: ranked})
}

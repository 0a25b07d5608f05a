package places

import (
	"context"

	"github.com/gustavodarosa/KidGo/pkg/eventloop"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"go.uber.org/zap"
)

// Resolution reports the outcome of a details lookup for a field.
type Resolution struct {
	Field   Field         `json:"field"`
	Details *PlaceDetails `json:"details,omitempty"`
	Err     error         `json:"-"`
}

type fieldResolve struct {
	seq     uint64
	pending bool
	details *PlaceDetails
}

// Resolver turns a chosen suggestion into exact coordinates and closes the
// billing interaction. Every method must be called on the session loop.
type Resolver struct {
	loop       *eventloop.Loop
	backend    Backend
	engine     *Engine
	tokens     *TokenManager
	language   string
	onResolved func(Resolution)

	fields map[Field]*fieldResolve
}

// NewResolver creates a resolver sharing the engine's token manager.
func NewResolver(loop *eventloop.Loop, backend Backend, engine *Engine, tokens *TokenManager, language string, onResolved func(Resolution)) *Resolver {
	if language == "" {
		language = DefaultLanguage
	}
	if onResolved == nil {
		onResolved = func(Resolution) {}
	}
	return &Resolver{
		loop:       loop,
		backend:    backend,
		engine:     engine,
		tokens:     tokens,
		language:   language,
		onResolved: onResolved,
		fields:     make(map[Field]*fieldResolve),
	}
}

// Resolve fetches details for s using the token its search carried. Only the
// latest call per field applies its result.
func (r *Resolver) Resolve(field Field, s PlaceSuggestion) {
	fr := r.field(field)
	fr.seq++
	fr.pending = true
	seq := fr.seq

	token := s.SessionToken
	if token == "" {
		token = r.tokens.Start().Token
	}
	req := DetailsRequest{
		PlaceID:      s.ID,
		Language:     r.language,
		SessionToken: token,
		Provider:     s.Provider,
	}

	backend := r.backend
	eventloop.Dispatch(r.loop, "places.details", func(ctx context.Context) (PlaceDetails, error) {
		return backend.Details(ctx, req)
	}, func(details PlaceDetails, err error) {
		r.complete(field, seq, details, err)
	})
}

// Abandon gives up on the field's interaction: any in-flight resolution is
// discarded, suggestions are cleared and the token is rotated.
func (r *Resolver) Abandon(field Field) {
	fr := r.field(field)
	fr.seq++
	fr.pending = false
	r.engine.Clear(field)
	r.tokens.RotateAfterResolution()
}

// Details returns the resolved place for field, if any.
func (r *Resolver) Details(field Field) (PlaceDetails, bool) {
	fr := r.field(field)
	if fr.details == nil {
		return PlaceDetails{}, false
	}
	return *fr.details, true
}

// Pending reports whether a resolution for field is in flight.
func (r *Resolver) Pending(field Field) bool {
	return r.field(field).pending
}

func (r *Resolver) field(f Field) *fieldResolve {
	fr, ok := r.fields[f]
	if !ok {
		fr = &fieldResolve{}
		r.fields[f] = fr
	}
	return fr
}

func (r *Resolver) complete(field Field, seq uint64, details PlaceDetails, err error) {
	fr := r.field(field)
	if seq != fr.seq {
		logger.DebugContext(r.loop.Context(), "discarding stale place details",
			zap.String("field", string(field)),
			zap.Uint64("seq", seq),
		)
		return
	}
	fr.pending = false

	// The token survives every failure, including ErrPlaceNotFound, so a retry
	// stays in the same billed interaction. Abandon rotates it.
	if err != nil {
		logger.WarnContext(r.loop.Context(), "place details failed",
			zap.String("field", string(field)),
			zap.Error(err),
		)
		r.onResolved(Resolution{Field: field, Err: err})
		return
	}

	r.engine.Clear(field)
	d := details
	fr.details = &d
	r.tokens.RotateAfterResolution()
	r.onResolved(Resolution{Field: field, Details: &d})
}

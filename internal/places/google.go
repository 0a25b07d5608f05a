package places

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gustavodarosa/KidGo/pkg/geo"
	"googlemaps.github.io/maps"
)

// ProviderGoogle names the Google Places backend.
const ProviderGoogle = "google"

// Google search modes. Text search returns coordinates, so results can be
// ranked; autocomplete is cheaper per keystroke but returns none.
const (
	GoogleModeTextSearch   = "textsearch"
	GoogleModeAutocomplete = "autocomplete"
)

// GoogleConfig configures the Google Places backend.
type GoogleConfig struct {
	APIKey  string
	Mode    string
	Region  string
	Timeout time.Duration
	// BaseURL overrides the Google endpoint, for tests.
	BaseURL string
}

// GoogleBackend searches through the Google Places web service.
type GoogleBackend struct {
	client  *maps.Client
	mode    string
	region  string
	initErr error
}

// NewGoogleBackend builds the backend. A missing key does not fail
// construction; every call then reports ErrSearchConfig so the chain can fall
// through to the next provider.
func NewGoogleBackend(cfg GoogleConfig) *GoogleBackend {
	if cfg.Mode == "" {
		cfg.Mode = GoogleModeTextSearch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
	}

	b := &GoogleBackend{mode: cfg.Mode, region: cfg.Region}
	if cfg.APIKey == "" {
		b.initErr = errors.New("google maps api key not configured")
		return b
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		b.initErr = fmt.Errorf("failed to create maps client: %w", err)
		return b
	}
	b.client = client
	return b
}

// Name returns the provider name
func (g *GoogleBackend) Name() string {
	return ProviderGoogle
}

// Search runs a text search or an autocomplete depending on the mode.
func (g *GoogleBackend) Search(ctx context.Context, req SearchRequest) ([]PlaceSuggestion, error) {
	if g.initErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchConfig, g.initErr)
	}
	if g.mode == GoogleModeAutocomplete {
		return g.autocomplete(ctx, req)
	}
	return g.textSearch(ctx, req)
}

func (g *GoogleBackend) textSearch(ctx context.Context, req SearchRequest) ([]PlaceSuggestion, error) {
	r := &maps.TextSearchRequest{
		Query:    req.Query,
		Language: req.Language,
		Region:   firstNonEmpty(req.Region, g.region),
	}
	if req.Bias != nil {
		r.Location = toLatLng(*req.Bias)
		r.Radius = uint(req.RadiusMeters)
	}

	resp, err := g.client.TextSearch(ctx, r)
	if err != nil {
		return nil, classifyGoogleError(err, ErrSearchConfig, ErrSearchTransient)
	}

	suggestions := make([]PlaceSuggestion, 0, len(resp.Results))
	for _, result := range resp.Results {
		coord := fromLatLng(result.Geometry.Location)
		suggestions = append(suggestions, PlaceSuggestion{
			ID:         result.PlaceID,
			Name:       result.Name,
			Address:    result.FormattedAddress,
			Coordinate: coord,
			Types:      result.Types,
			Provider:   ProviderGoogle,
		})
	}
	return suggestions, nil
}

func (g *GoogleBackend) autocomplete(ctx context.Context, req SearchRequest) ([]PlaceSuggestion, error) {
	r := &maps.PlaceAutocompleteRequest{
		Input:        req.Query,
		Language:     req.Language,
		SessionToken: sessionToken(req.SessionToken),
	}
	if req.Bias != nil {
		r.Location = toLatLng(*req.Bias)
		r.Origin = toLatLng(*req.Bias)
		r.Radius = uint(req.RadiusMeters)
	}

	resp, err := g.client.PlaceAutocomplete(ctx, r)
	if err != nil {
		return nil, classifyGoogleError(err, ErrSearchConfig, ErrSearchTransient)
	}

	suggestions := make([]PlaceSuggestion, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		name := p.StructuredFormatting.MainText
		if name == "" {
			name = p.Description
		}
		suggestions = append(suggestions, PlaceSuggestion{
			ID:       p.PlaceID,
			Name:     name,
			Address:  firstNonEmpty(p.StructuredFormatting.SecondaryText, p.Description),
			Types:    p.Types,
			Provider: ProviderGoogle,
		})
	}
	return suggestions, nil
}

// Details resolves a place ID, closing the autocomplete session when a token is given.
func (g *GoogleBackend) Details(ctx context.Context, req DetailsRequest) (PlaceDetails, error) {
	if g.initErr != nil {
		return PlaceDetails{}, fmt.Errorf("%w: %v", ErrDetailsConfig, g.initErr)
	}

	r := &maps.PlaceDetailsRequest{
		PlaceID:  req.PlaceID,
		Language: req.Language,
		Region:   g.region,
		Fields: []maps.PlaceDetailsFieldMask{
			maps.PlaceDetailsFieldMaskPlaceID,
			maps.PlaceDetailsFieldMaskName,
			maps.PlaceDetailsFieldMaskFormattedAddress,
			maps.PlaceDetailsFieldMaskGeometry,
		},
		SessionToken: sessionToken(req.SessionToken),
	}

	result, err := g.client.PlaceDetails(ctx, r)
	if err != nil {
		if strings.Contains(err.Error(), "NOT_FOUND") {
			return PlaceDetails{}, fmt.Errorf("%w: %s", ErrPlaceNotFound, req.PlaceID)
		}
		return PlaceDetails{}, classifyGoogleError(err, ErrDetailsConfig, ErrDetailsTransient)
	}

	coord := fromLatLng(result.Geometry.Location)
	if coord == nil {
		return PlaceDetails{}, fmt.Errorf("%w: %s has no coordinate", ErrPlaceNotFound, req.PlaceID)
	}

	return PlaceDetails{
		ID:         firstNonEmpty(result.PlaceID, req.PlaceID),
		Name:       result.Name,
		Address:    result.FormattedAddress,
		Coordinate: *coord,
	}, nil
}

// classifyGoogleError maps a Google status error onto the package taxonomy.
// The client formats statuses as "maps: STATUS - message".
func classifyGoogleError(err, configErr, transientErr error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg := err.Error()
	for _, status := range []string{"REQUEST_DENIED", "INVALID_REQUEST", "API key", "API Key"} {
		if strings.Contains(msg, status) {
			return fmt.Errorf("%w: %v", configErr, err)
		}
	}
	return fmt.Errorf("%w: %v", transientErr, err)
}

func sessionToken(token string) maps.PlaceAutocompleteSessionToken {
	u, err := uuid.Parse(token)
	if err != nil {
		return maps.PlaceAutocompleteSessionToken(uuid.Nil)
	}
	return maps.PlaceAutocompleteSessionToken(u)
}

func toLatLng(c geo.Coordinate) *maps.LatLng {
	return &maps.LatLng{Lat: c.Latitude, Lng: c.Longitude}
}

// fromLatLng treats the zero point as absent; Google omits geometry for some
// result types.
func fromLatLng(ll maps.LatLng) *geo.Coordinate {
	if ll.Lat == 0 && ll.Lng == 0 {
		return nil
	}
	return &geo.Coordinate{Latitude: ll.Lat, Longitude: ll.Lng}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

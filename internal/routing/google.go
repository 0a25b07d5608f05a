package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/geo"
	"googlemaps.github.io/maps"
)

// ProviderGoogle names the Google Directions backend.
const ProviderGoogle = "google"

// GoogleConfig configures the Google Directions backend.
type GoogleConfig struct {
	APIKey   string
	Language string
	Region   string
	Timeout  time.Duration
	// BaseURL overrides the Google endpoint, for tests.
	BaseURL string
}

// GoogleBackend implements Backend over the Google Directions API.
type GoogleBackend struct {
	client   *maps.Client
	language string
	region   string
	initErr  error
}

// NewGoogleBackend builds the backend. Without a key every call fails as
// transient so the chain moves on.
func NewGoogleBackend(cfg GoogleConfig) *GoogleBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	b := &GoogleBackend{language: cfg.Language, region: cfg.Region}
	if cfg.APIKey == "" {
		b.initErr = errors.New("google maps api key not configured")
		return b
	}

	opts := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
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

// Route asks Directions for a driving route and decodes its overview polyline.
func (g *GoogleBackend) Route(ctx context.Context, req RouteRequest) (Route, error) {
	if g.initErr != nil {
		return Route{}, fmt.Errorf("%w: %v", ErrRouteTransient, g.initErr)
	}

	r := &maps.DirectionsRequest{
		Origin:      formatLatLng(req.Origin),
		Destination: formatLatLng(req.Destination),
		Mode:        maps.TravelModeDriving,
		Language:    g.language,
		Region:      g.region,
	}

	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Route{}, err
		}
		if strings.Contains(err.Error(), "ZERO_RESULTS") || strings.Contains(err.Error(), "NOT_FOUND") {
			return Route{}, fmt.Errorf("%w: %v", ErrNoRoute, err)
		}
		return Route{}, fmt.Errorf("%w: directions request failed: %v", ErrRouteTransient, err)
	}
	if len(routes) == 0 {
		return Route{}, fmt.Errorf("%w: directions returned no routes", ErrNoRoute)
	}

	route := routes[0]
	points, err := route.OverviewPolyline.Decode()
	if err != nil {
		return Route{}, fmt.Errorf("%w: failed to decode polyline: %v", ErrRouteTransient, err)
	}

	polyline := make([]geo.Coordinate, len(points))
	for i, p := range points {
		polyline[i] = geo.Coordinate{Latitude: p.Lat, Longitude: p.Lng}
	}

	var meters int
	var duration time.Duration
	for _, leg := range route.Legs {
		meters += leg.Distance.Meters
		duration += leg.Duration
	}

	return Route{
		Polyline:        polyline,
		DistanceMeters:  floatPtr(float64(meters)),
		DurationSeconds: floatPtr(duration.Seconds()),
		Provider:        ProviderGoogle,
	}, nil
}

func formatLatLng(c geo.Coordinate) string {
	return fmt.Sprintf("%f,%f", c.Latitude, c.Longitude)
}

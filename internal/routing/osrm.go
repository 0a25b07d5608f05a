package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/geo"
	"github.com/gustavodarosa/KidGo/pkg/httpclient"
)

// ProviderOSRM names the OSRM backend.
const ProviderOSRM = "osrm"

const osrmDefaultURL = "https://router.project-osrm.org"

// OSRM answers with one of these codes when the request was understood but
// no route exists.
var osrmNoRouteCodes = map[string]bool{
	"NoRoute":   true,
	"NoSegment": true,
}

// OSRMBackend implements Backend over the OSRM HTTP route service.
type OSRMBackend struct {
	client *httpclient.Client
}

// NewOSRMBackend creates a new OSRM backend
func NewOSRMBackend(baseURL string, timeout time.Duration) *OSRMBackend {
	if baseURL == "" {
		baseURL = osrmDefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OSRMBackend{
		client: httpclient.NewClient(baseURL, timeout, httpclient.WithName("osrm"), httpclient.WithDefaultRetry()),
	}
}

// Name returns the provider name
func (o *OSRMBackend) Name() string {
	return ProviderOSRM
}

// Route fetches the full-overview driving route as GeoJSON.
func (o *OSRMBackend) Route(ctx context.Context, req RouteRequest) (Route, error) {
	path := fmt.Sprintf("/route/v1/driving/%s;%s", formatOSRMCoordinate(req.Origin), formatOSRMCoordinate(req.Destination))
	params := url.Values{}
	params.Set("overview", "full")
	params.Set("geometries", "geojson")

	var resp osrmRouteResponse
	if err := o.client.GetJSON(ctx, path, params, &resp); err != nil {
		if code := osrmErrorCode(err); osrmNoRouteCodes[code] {
			return Route{}, fmt.Errorf("%w: osrm %s", ErrNoRoute, code)
		}
		if errors.Is(err, context.Canceled) {
			return Route{}, err
		}
		return Route{}, fmt.Errorf("%w: osrm request failed: %v", ErrRouteTransient, err)
	}

	if osrmNoRouteCodes[resp.Code] || (resp.Code == "Ok" && len(resp.Routes) == 0) {
		return Route{}, fmt.Errorf("%w: osrm %s", ErrNoRoute, resp.Code)
	}
	if resp.Code != "Ok" {
		return Route{}, fmt.Errorf("%w: osrm %s: %s", ErrRouteTransient, resp.Code, resp.Message)
	}

	r := resp.Routes[0]
	polyline := make([]geo.Coordinate, 0, len(r.Geometry.Coordinates))
	for _, pair := range r.Geometry.Coordinates {
		if len(pair) < 2 {
			continue
		}
		// GeoJSON positions are [longitude, latitude].
		polyline = append(polyline, geo.Coordinate{Latitude: pair[1], Longitude: pair[0]})
	}

	return Route{
		Polyline:        polyline,
		DistanceMeters:  floatPtr(r.Distance),
		DurationSeconds: floatPtr(r.Duration),
		Provider:        ProviderOSRM,
	}, nil
}

func formatOSRMCoordinate(c geo.Coordinate) string {
	return fmt.Sprintf("%f,%f", c.Longitude, c.Latitude)
}

// osrmErrorCode pulls the OSRM code out of an error response body.
func osrmErrorCode(err error) string {
	var httpErr *httpclient.HTTPError
	if !errors.As(err, &httpErr) {
		return ""
	}
	var body osrmRouteResponse
	if json.Unmarshal([]byte(httpErr.Body), &body) != nil {
		return ""
	}
	return body.Code
}

type osrmRouteResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Geometry osrmGeometry `json:"geometry"`
}

type osrmGeometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

package places

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/geo"
	"github.com/gustavodarosa/KidGo/pkg/httpclient"
)

// ProviderHERE names the HERE Geocoding & Search backend.
const ProviderHERE = "here"

const (
	hereDiscoverURL = "https://discover.search.hereapi.com/v1"
	hereLookupURL   = "https://lookup.search.hereapi.com/v1"
	hereResultLimit = "20"
)

// HERE requires an area when no position is known.
var hereCountryCodes = map[string]string{
	"br": "BRA",
	"pt": "PRT",
	"ar": "ARG",
	"mx": "MEX",
	"us": "USA",
}

// HEREConfig configures the HERE backend.
type HEREConfig struct {
	APIKey      string
	DiscoverURL string
	LookupURL   string
	Region      string
	Timeout     time.Duration
}

// HEREBackend implements Backend over the HERE discover and lookup endpoints.
type HEREBackend struct {
	apiKey         string
	region         string
	discoverClient *httpclient.Client
	lookupClient   *httpclient.Client
}

// NewHEREBackend creates a new HERE backend
func NewHEREBackend(cfg HEREConfig) *HEREBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	discoverURL := firstNonEmpty(cfg.DiscoverURL, hereDiscoverURL)
	lookupURL := firstNonEmpty(cfg.LookupURL, hereLookupURL)

	return &HEREBackend{
		apiKey:         cfg.APIKey,
		region:         strings.ToLower(cfg.Region),
		discoverClient: httpclient.NewClient(discoverURL, timeout, httpclient.WithName("here-discover")),
		lookupClient:   httpclient.NewClient(lookupURL, timeout, httpclient.WithName("here-lookup"), httpclient.WithDefaultRetry()),
	}
}

// Name returns the provider name
func (h *HEREBackend) Name() string {
	return ProviderHERE
}

// Search queries /discover around the bias, or inside the configured country.
func (h *HEREBackend) Search(ctx context.Context, req SearchRequest) ([]PlaceSuggestion, error) {
	if h.apiKey == "" {
		return nil, fmt.Errorf("%w: HERE api key not configured", ErrSearchConfig)
	}

	params := url.Values{}
	params.Set("apiKey", h.apiKey)
	params.Set("q", req.Query)
	params.Set("limit", hereResultLimit)

	if req.Bias != nil {
		params.Set("at", formatHERECoordinate(*req.Bias))
	} else {
		region := strings.ToLower(firstNonEmpty(req.Region, h.region))
		code, ok := hereCountryCodes[region]
		if !ok {
			return nil, fmt.Errorf("%w: HERE search needs a position or a known region, got %q", ErrSearchConfig, region)
		}
		params.Set("in", "countryCode:"+code)
	}

	if req.Language != "" {
		params.Set("lang", req.Language)
	}

	var resp hereDiscoverResponse
	if err := h.discoverClient.GetJSON(ctx, "/discover", params, &resp); err != nil {
		return nil, classifyHTTPError(err, ErrSearchConfig, ErrSearchTransient)
	}

	suggestions := make([]PlaceSuggestion, 0, len(resp.Items))
	for _, item := range resp.Items {
		suggestions = append(suggestions, item.toSuggestion())
	}
	return suggestions, nil
}

// Details looks a HERE place ID up.
func (h *HEREBackend) Details(ctx context.Context, req DetailsRequest) (PlaceDetails, error) {
	if h.apiKey == "" {
		return PlaceDetails{}, fmt.Errorf("%w: HERE api key not configured", ErrDetailsConfig)
	}

	params := url.Values{}
	params.Set("apiKey", h.apiKey)
	params.Set("id", req.PlaceID)
	if req.Language != "" {
		params.Set("lang", req.Language)
	}

	var item hereItem
	if err := h.lookupClient.GetJSON(ctx, "/lookup", params, &item); err != nil {
		if httpclient.StatusCode(err) == http.StatusNotFound {
			return PlaceDetails{}, fmt.Errorf("%w: %s", ErrPlaceNotFound, req.PlaceID)
		}
		return PlaceDetails{}, classifyHTTPError(err, ErrDetailsConfig, ErrDetailsTransient)
	}

	if item.Position == nil {
		return PlaceDetails{}, fmt.Errorf("%w: %s has no position", ErrPlaceNotFound, req.PlaceID)
	}

	return PlaceDetails{
		ID:         firstNonEmpty(item.ID, req.PlaceID),
		Name:       item.Title,
		Address:    item.Address.Label,
		Coordinate: geo.Coordinate{Latitude: item.Position.Lat, Longitude: item.Position.Lng},
	}, nil
}

func formatHERECoordinate(c geo.Coordinate) string {
	return fmt.Sprintf("%f,%f", c.Latitude, c.Longitude)
}

// classifyHTTPError maps rejected credentials and malformed requests to
// configErr and everything else to transientErr.
func classifyHTTPError(err, configErr, transientErr error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	switch httpclient.StatusCode(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", configErr, err)
	default:
		return fmt.Errorf("%w: %v", transientErr, err)
	}
}

type hereDiscoverResponse struct {
	Items []hereItem `json:"items"`
}

type hereItem struct {
	Title      string         `json:"title"`
	ID         string         `json:"id"`
	ResultType string         `json:"resultType"`
	Address    hereAddress    `json:"address"`
	Position   *herePosition  `json:"position"`
	Categories []hereCategory `json:"categories"`
}

type hereAddress struct {
	Label       string `json:"label"`
	CountryCode string `json:"countryCode"`
	City        string `json:"city"`
	District    string `json:"district"`
	Street      string `json:"street"`
	PostalCode  string `json:"postalCode"`
}

type herePosition struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type hereCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (item hereItem) toSuggestion() PlaceSuggestion {
	s := PlaceSuggestion{
		ID:       item.ID,
		Name:     item.Title,
		Address:  item.Address.Label,
		Provider: ProviderHERE,
	}
	if item.Position != nil {
		s.Coordinate = &geo.Coordinate{Latitude: item.Position.Lat, Longitude: item.Position.Lng}
	}
	for _, c := range item.Categories {
		s.Types = append(s.Types, firstNonEmpty(c.Name, c.ID))
	}
	return s
}

package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

const (
	// DefaultNominatimURL is the public OpenStreetMap Nominatim endpoint
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	// DefaultUserAgent identifies the client to Nominatim, which rejects empty agents
	DefaultUserAgent = "tracker-enrich-location-converter/1.0"
	// DefaultRateLimit is the public usage policy limit of one request per second
	DefaultRateLimit = 1.0
)

// Result is a geocoding match. Found is false for a no-match answer.
type Result struct {
	Latitude  float64
	Longitude float64
	Address   string
	Found     bool
}

// Nominatim queries a Nominatim search endpoint with free-text queries. One
// client is meant to be shared by every pipeline run in the process so the
// rate limit applies globally.
type Nominatim struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

// NominatimOption configures a Nominatim client
type NominatimOption func(*Nominatim)

// WithBaseURL overrides the Nominatim endpoint
func WithBaseURL(baseURL string) NominatimOption {
	return func(n *Nominatim) {
		if strings.TrimSpace(baseURL) != "" {
			n.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client used for lookups
func WithHTTPClient(client *http.Client) NominatimOption {
	return func(n *Nominatim) {
		if client != nil {
			n.httpClient = client
		}
	}
}

// WithUserAgent sets the User-Agent header Nominatim requires
func WithUserAgent(userAgent string) NominatimOption {
	return func(n *Nominatim) {
		if strings.TrimSpace(userAgent) != "" {
			n.userAgent = userAgent
		}
	}
}

// WithRateLimit sets the request rate in requests per second. Zero or a
// negative value disables throttling.
func WithRateLimit(rps float64) NominatimOption {
	return func(n *Nominatim) {
		if rps <= 0 {
			n.limiter = nil
			return
		}
		n.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewNominatim creates a Nominatim geocoder
func NewNominatim(opts ...NominatimOption) *Nominatim {
	n := &Nominatim{
		baseURL:    DefaultNominatimURL,
		httpClient: http.DefaultClient,
		userAgent:  DefaultUserAgent,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Geocode looks up query and returns the best match
func (n *Nominatim) Geocode(ctx context.Context, query string) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{Found: false}, nil
	}
	if n == nil {
		return Result{}, errors.New("geocode: nominatim is nil")
	}

	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return Result{}, fmt.Errorf("geocode: rate limit wait: %w", err)
		}
	}

	endpoint := strings.TrimRight(n.baseURL, "/") + "/search"
	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, err
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("geocode: status %d", resp.StatusCode)
	}

	var results []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Result{}, fmt.Errorf("geocode: decode response: %w", err)
	}
	if len(results) == 0 {
		return Result{Found: false}, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: parse latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: parse longitude: %w", err)
	}
	return Result{
		Latitude:  lat,
		Longitude: lng,
		Address:   results[0].DisplayName,
		Found:     true,
	}, nil
}

// Package geo provides a best-effort forward geocoder backed by a
// Nominatim-compatible search endpoint.
package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// NominatimGeocoder resolves street addresses to coordinates. Lookups are
// bounded by the client timeout and the caller's context; failures are
// reported but expected to be non-fatal.
type NominatimGeocoder struct {
	client *resty.Client
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// NewNominatimGeocoder creates a geocoder against the given base URL.
func NewNominatimGeocoder(baseURL string, timeout time.Duration) *NominatimGeocoder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "garagen-flohmarkt/1.0")
	return &NominatimGeocoder{client: client}
}

// Geocode resolves an address within the market's town to coordinates.
func (g *NominatimGeocoder) Geocode(ctx context.Context, address, plz string) (float64, float64, error) {
	var results []searchResult

	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      fmt.Sprintf("%s, %s Zirndorf, Germany", address, plz),
			"format": "json",
			"limit":  "1",
		}).
		SetResult(&results).
		Get("/search")
	if err != nil {
		return 0, 0, fmt.Errorf("geocode request failed: %w", err)
	}
	if resp.IsError() {
		return 0, 0, fmt.Errorf("geocode request failed: status %d", resp.StatusCode())
	}
	if len(results) == 0 {
		return 0, 0, fmt.Errorf("no geocode result for %q", address)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing longitude: %w", err)
	}
	return lat, lng, nil
}

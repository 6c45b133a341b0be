package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// NominatimGeocoder resolves coordinates against a Nominatim-compatible
// reverse endpoint. Any self-hosted or public instance works as long as it
// answers GET /reverse?format=jsonv2&lat=..&lon=.. with a display_name.
type NominatimGeocoder struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewNominatimGeocoder creates a geocoder for the given instance base URL.
func NewNominatimGeocoder(baseURL string, timeout time.Duration) *NominatimGeocoder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NominatimGeocoder{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// ReverseGeocode implements Geocoder.
func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build reverse request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse lookup returned status %d", resp.StatusCode)
	}

	var out struct {
		DisplayName string `json:"display_name"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read reverse response: %w", err)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("malformed reverse response: %w", err)
	}
	if out.DisplayName == "" {
		return "", fmt.Errorf("reverse lookup returned no display name")
	}
	return out.DisplayName, nil
}

package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lumasafe/guardian/internal/httpc"
)

// HTTPGeocoder reverse-geocodes against a Nominatim-compatible
// endpoint (GET /reverse?format=jsonv2&lat=..&lon=..).
type HTTPGeocoder struct {
	baseURL string
	client  *http.Client
}

var _ Geocoder = (*HTTPGeocoder)(nil)

// NewHTTPGeocoder creates a geocoder for the given reverse endpoint.
func NewHTTPGeocoder(baseURL string) *HTTPGeocoder {
	return &HTTPGeocoder{baseURL: baseURL, client: httpc.Client}
}

func (g *HTTPGeocoder) Reverse(ctx context.Context, fix Fix) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(fix.Latitude, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(fix.Longitude, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocode status %d", resp.StatusCode)
	}

	var out struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode geocode response: %w", err)
	}
	return out.DisplayName, nil
}

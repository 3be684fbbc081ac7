// Package googlemaps is the default GeoProvider adapter (pkg/geoprovider),
// backed by the Google Maps Distance Matrix, Geocoding and Places APIs. It
// calls the plain REST endpoints through pkg/request.Client rather than a
// vendored SDK, so the per-provider queuing, exponential backoff and
// success/failure tracking pkg/request already implements is shared with
// every other external collaborator instead of duplicated.
package googlemaps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"tripweave/pkg/geoprovider"
	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
)

const (
	distanceMatrixURL = "https://maps.googleapis.com/maps/api/distancematrix/json"
	geocodeURL        = "https://maps.googleapis.com/maps/api/geocode/json"
	findPlaceURL      = "https://maps.googleapis.com/maps/api/place/findplacefromtext/json"
)

// httpClient is the subset of *request.Client the adapter needs, kept
// narrow so tests can substitute a fake without standing up a real queue.
type httpClient interface {
	Get(ctx context.Context, u string, headers map[string]string) ([]byte, error)
}

// Client adapts Google Maps' REST APIs to geoprovider.Provider.
type Client struct {
	http   httpClient
	apiKey string
}

// New wraps an httpClient (normally *request.Client) with the given API key.
func New(http httpClient, apiKey string) *Client {
	return &Client{http: http, apiKey: apiKey}
}

var modeParam = map[model.TravelMode]string{
	model.ModeWalking: "walking",
	model.ModeTransit: "transit",
	model.ModeDriving: "driving",
}

type distanceMatrixResponse struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value float64 `json:"value"` // meters
			} `json:"distance"`
			Duration struct {
				Value float64 `json:"value"` // seconds
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

// DistanceMatrix resolves legs for every (origin, dest, mode) combination,
// one Distance Matrix call per mode since the API scores a single mode per
// request. Callers are expected to keep origins and dests each within
// geoprovider.MaxBatchSize.
func (c *Client) DistanceMatrix(ctx context.Context, origins, dests []model.Point, modes []model.TravelMode) ([][]geoprovider.ModeLegs, error) {
	out := make([][]geoprovider.ModeLegs, len(origins))
	for i := range out {
		out[i] = make([]geoprovider.ModeLegs, len(dests))
		for j := range out[i] {
			out[i][j] = geoprovider.ModeLegs{}
		}
	}
	if len(origins) == 0 || len(dests) == 0 {
		return out, nil
	}

	for _, mode := range modes {
		param, ok := modeParam[mode]
		if !ok {
			continue
		}
		resp, err := c.fetchMatrix(ctx, origins, dests, param)
		if err != nil {
			return nil, err
		}
		for i, row := range resp.Rows {
			for j, el := range row.Elements {
				if el.Status != "OK" {
					continue
				}
				out[i][j][mode] = model.Leg{
					DistanceKM:      el.Distance.Value / 1000.0,
					DurationMinutes: el.Duration.Value / 60.0,
				}
			}
		}
	}
	return out, nil
}

func (c *Client) fetchMatrix(ctx context.Context, origins, dests []model.Point, mode string) (*distanceMatrixResponse, error) {
	q := url.Values{}
	q.Set("origins", joinPoints(origins))
	q.Set("destinations", joinPoints(dests))
	q.Set("mode", mode)
	q.Set("key", c.apiKey)

	body, err := c.http.Get(ctx, distanceMatrixURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, wrapTransportErr(err)
	}

	var resp distanceMatrixResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, planerr.Wrap(planerr.KindExternalPermanent, "geoprovider.bad_response", "distance matrix response unparseable", err)
	}
	if resp.Status != "OK" {
		return nil, planerr.New(planerr.KindExternalPermanent, "geoprovider.status_"+strings.ToLower(resp.Status), "distance matrix returned status "+resp.Status)
	}
	return &resp, nil
}

func joinPoints(pts []model.Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lon, 'f', 6, 64)
	}
	return strings.Join(parts, "|")
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves a free-text address to coordinates via the Geocoding API.
func (c *Client) Geocode(ctx context.Context, address string) (model.Point, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.apiKey)

	body, err := c.http.Get(ctx, geocodeURL+"?"+q.Encode(), nil)
	if err != nil {
		return model.Point{}, wrapTransportErr(err)
	}

	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Point{}, planerr.Wrap(planerr.KindExternalPermanent, "geoprovider.bad_response", "geocode response unparseable", err)
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return model.Point{}, planerr.New(planerr.KindNotFound, "geoprovider.no_match", fmt.Sprintf("no geocode match for %q", address))
	}
	loc := resp.Results[0].Geometry.Location
	return model.Point{Lat: loc.Lat, Lon: loc.Lng}, nil
}

type findPlaceResponse struct {
	Status      string `json:"status"`
	Candidates  []struct {
		Name             string `json:"name"`
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"candidates"`
}

// PlaceDetails resolves a free-text query to the single best-matching place
// via the Places "Find Place From Text" API, used when a POI record arrives
// without coordinates.
func (c *Client) PlaceDetails(ctx context.Context, query string) (geoprovider.PlaceDetail, error) {
	q := url.Values{}
	q.Set("input", query)
	q.Set("inputtype", "textquery")
	q.Set("fields", "name,formatted_address,geometry")
	q.Set("key", c.apiKey)

	body, err := c.http.Get(ctx, findPlaceURL+"?"+q.Encode(), nil)
	if err != nil {
		return geoprovider.PlaceDetail{}, wrapTransportErr(err)
	}

	var resp findPlaceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return geoprovider.PlaceDetail{}, planerr.Wrap(planerr.KindExternalPermanent, "geoprovider.bad_response", "place details response unparseable", err)
	}
	if resp.Status != "OK" || len(resp.Candidates) == 0 {
		return geoprovider.PlaceDetail{}, planerr.New(planerr.KindNotFound, "geoprovider.no_match", fmt.Sprintf("no place match for %q", query))
	}
	cand := resp.Candidates[0]
	return geoprovider.PlaceDetail{
		Name:    cand.Name,
		Address: cand.FormattedAddress,
		Coords:  model.Point{Lat: cand.Geometry.Location.Lat, Lon: cand.Geometry.Location.Lng},
	}, nil
}

// wrapTransportErr classifies a pkg/request error (already retried to
// exhaustion) as an unavailable upstream rather than a hard permanent
// failure, since the cause is a connection/backoff failure, not a
// rejected request.
func wrapTransportErr(err error) error {
	return planerr.Wrap(planerr.KindExternalUnavailable, "geoprovider.transport", "distance/geocode request failed", err)
}

package googlemaps

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
)

type fakeHTTP struct {
	bodies map[string]string // url substring -> response body
	err    error
}

func (f *fakeHTTP) Get(ctx context.Context, u string, headers map[string]string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	for substr, body := range f.bodies {
		if strings.Contains(u, substr) {
			return []byte(body), nil
		}
	}
	return nil, nil
}

func TestDistanceMatrix_ParsesOKElements(t *testing.T) {
	fake := &fakeHTTP{bodies: map[string]string{
		"distancematrix": `{
			"status": "OK",
			"rows": [{"elements": [{"status": "OK", "distance": {"value": 1500}, "duration": {"value": 900}}]}]
		}`,
	}}
	c := New(fake, "test-key")

	origins := []model.Point{{Lat: 41.89, Lon: 12.49}}
	dests := []model.Point{{Lat: 41.90, Lon: 12.48}}
	legs, err := c.DistanceMatrix(context.Background(), origins, dests, []model.TravelMode{model.ModeWalking})
	require.NoError(t, err)
	require.Equal(t, 1.5, legs[0][0][model.ModeWalking].DistanceKM)
	require.Equal(t, 15.0, legs[0][0][model.ModeWalking].DurationMinutes)
}

func TestDistanceMatrix_SkipsNonOKElements(t *testing.T) {
	fake := &fakeHTTP{bodies: map[string]string{
		"distancematrix": `{
			"status": "OK",
			"rows": [{"elements": [{"status": "ZERO_RESULTS"}]}]
		}`,
	}}
	c := New(fake, "test-key")

	legs, err := c.DistanceMatrix(context.Background(), []model.Point{{}}, []model.Point{{}}, []model.TravelMode{model.ModeWalking})
	require.NoError(t, err)
	_, ok := legs[0][0][model.ModeWalking]
	require.False(t, ok)
}

func TestDistanceMatrix_EmptyInputsShortCircuit(t *testing.T) {
	c := New(&fakeHTTP{}, "test-key")
	legs, err := c.DistanceMatrix(context.Background(), nil, nil, []model.TravelMode{model.ModeWalking})
	require.NoError(t, err)
	require.Empty(t, legs)
}

func TestDistanceMatrix_NonOKStatusIsPermanentError(t *testing.T) {
	fake := &fakeHTTP{bodies: map[string]string{
		"distancematrix": `{"status": "REQUEST_DENIED"}`,
	}}
	c := New(fake, "test-key")

	_, err := c.DistanceMatrix(context.Background(), []model.Point{{}}, []model.Point{{}}, []model.TravelMode{model.ModeWalking})
	require.Error(t, err)
	require.Equal(t, planerr.KindExternalPermanent, planerr.KindOf(err))
}

func TestGeocode_ReturnsCoordinates(t *testing.T) {
	fake := &fakeHTTP{bodies: map[string]string{
		"geocode": `{"status": "OK", "results": [{"geometry": {"location": {"lat": 41.89, "lng": 12.49}}}]}`,
	}}
	c := New(fake, "test-key")

	pt, err := c.Geocode(context.Background(), "Colosseum, Rome")
	require.NoError(t, err)
	require.Equal(t, 41.89, pt.Lat)
	require.Equal(t, 12.49, pt.Lon)
}

func TestGeocode_NoResultsIsNotFound(t *testing.T) {
	fake := &fakeHTTP{bodies: map[string]string{
		"geocode": `{"status": "ZERO_RESULTS", "results": []}`,
	}}
	c := New(fake, "test-key")

	_, err := c.Geocode(context.Background(), "nowhere")
	require.Error(t, err)
	require.Equal(t, planerr.KindNotFound, planerr.KindOf(err))
}

func TestPlaceDetails_ReturnsBestCandidate(t *testing.T) {
	fake := &fakeHTTP{bodies: map[string]string{
		"findplacefromtext": `{
			"status": "OK",
			"candidates": [{"name": "Colosseum", "formatted_address": "Rome, Italy", "geometry": {"location": {"lat": 41.89, "lng": 12.49}}}]
		}`,
	}}
	c := New(fake, "test-key")

	detail, err := c.PlaceDetails(context.Background(), "Colosseum")
	require.NoError(t, err)
	require.Equal(t, "Colosseum", detail.Name)
	require.Equal(t, "Rome, Italy", detail.Address)
}

func TestTransportErrorIsUnavailable(t *testing.T) {
	fake := &fakeHTTP{err: context.DeadlineExceeded}
	c := New(fake, "test-key")

	_, err := c.Geocode(context.Background(), "anywhere")
	require.Error(t, err)
	require.Equal(t, planerr.KindExternalUnavailable, planerr.KindOf(err))
}

package distancecache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tripweave/pkg/geoprovider"
	"tripweave/pkg/model"
)

type fakeProvider struct {
	calls int
}

func (f *fakeProvider) DistanceMatrix(ctx context.Context, origins, dests []model.Point, modes []model.TravelMode) ([][]geoprovider.ModeLegs, error) {
	f.calls++
	out := make([][]geoprovider.ModeLegs, len(origins))
	for i := range origins {
		out[i] = make([]geoprovider.ModeLegs, len(dests))
		for j := range dests {
			legs := geoprovider.ModeLegs{}
			for _, mode := range modes {
				legs[mode] = model.Leg{DurationMinutes: 10, DistanceKM: 1.2}
			}
			out[i][j] = legs
		}
	}
	return out, nil
}

func (f *fakeProvider) PlaceDetails(ctx context.Context, query string) (geoprovider.PlaceDetail, error) {
	return geoprovider.PlaceDetail{}, nil
}

func (f *fakeProvider) Geocode(ctx context.Context, address string) (model.Point, error) {
	return model.Point{}, nil
}

func testPOIs() []*model.POI {
	return []*model.POI{
		{Slug: "a", Name: "A", Coords: model.Point{Lat: 41.89, Lon: 12.49}},
		{Slug: "b", Name: "B", Coords: model.Point{Lat: 41.90, Lon: 12.48}},
		{Slug: "c", Name: "C", Coords: model.Point{Lat: 41.91, Lon: 12.47}},
	}
}

func TestComputeAll_PersistsAndLooksUp(t *testing.T) {
	root := t.TempDir()
	c := New(root)
	provider := &fakeProvider{}
	pois := testPOIs()

	m, err := c.ComputeAll(context.Background(), "rome", pois, []model.TravelMode{model.ModeWalking}, provider)
	require.NoError(t, err)
	require.Equal(t, 3, m.POICount)

	leg, ok := c.Lookup("rome", "a", "b", model.ModeWalking)
	require.True(t, ok)
	require.Equal(t, 1.2, leg.DistanceKM)

	// same-POI lookup is always a zero-distance hit.
	leg, ok = c.Lookup("rome", "a", "a", model.ModeWalking)
	require.True(t, ok)
	require.Equal(t, 0.0, leg.DistanceKM)
}

func TestLookup_MissingPairIsNotAZeroDefault(t *testing.T) {
	root := t.TempDir()
	c := New(root)
	_, ok := c.Lookup("rome", "x", "y", model.ModeWalking)
	require.False(t, ok)
}

func TestExtend_DoesNotRequeryKnownPairs(t *testing.T) {
	root := t.TempDir()
	c := New(root)
	provider := &fakeProvider{}
	pois := testPOIs()

	_, err := c.ComputeAll(context.Background(), "rome", pois, []model.TravelMode{model.ModeWalking}, provider)
	require.NoError(t, err)
	callsAfterCompute := provider.calls

	newPOI := &model.POI{Slug: "d", Name: "D", Coords: model.Point{Lat: 41.92, Lon: 12.46}}
	_, err = c.Extend(context.Background(), "rome", []*model.POI{newPOI}, pois, []model.TravelMode{model.ModeWalking}, provider)
	require.NoError(t, err)
	require.Greater(t, provider.calls, callsAfterCompute, "extend should query at least once for the new POI")

	callsAfterExtend := provider.calls

	// Extending again with the same new/existing set should not requery:
	// every pair is already known.
	_, err = c.Extend(context.Background(), "rome", []*model.POI{newPOI}, pois, []model.TravelMode{model.ModeWalking}, provider)
	require.NoError(t, err)
	require.Equal(t, callsAfterExtend, provider.calls, "extend must be idempotent: no requery of known pairs")

	leg, ok := c.Lookup("rome", "a", "d", model.ModeWalking)
	require.True(t, ok)
	require.Equal(t, 1.2, leg.DistanceKM)

	leg, ok = c.Lookup("rome", "d", "a", model.ModeWalking)
	require.True(t, ok)
	require.Equal(t, 1.2, leg.DistanceKM)
}

func TestFallbackKM(t *testing.T) {
	require.Equal(t, 2.0, FallbackKM())
}

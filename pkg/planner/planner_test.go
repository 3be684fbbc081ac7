package planner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tripweave/pkg/config"
	"tripweave/pkg/distancecache"
	"tripweave/pkg/geoprovider"
	"tripweave/pkg/model"
	"tripweave/pkg/selector"
	"tripweave/pkg/tourstore"
)

type fakeProvider struct{}

func (f *fakeProvider) DistanceMatrix(ctx context.Context, origins, dests []model.Point, modes []model.TravelMode) ([][]geoprovider.ModeLegs, error) {
	out := make([][]geoprovider.ModeLegs, len(origins))
	for i := range origins {
		out[i] = make([]geoprovider.ModeLegs, len(dests))
		for j := range dests {
			legs := geoprovider.ModeLegs{}
			for _, m := range modes {
				legs[m] = model.Leg{DistanceKM: 0.8, DurationMinutes: 10}
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

type fixedSelectorPort struct {
	decision model.SelectionDecision
}

func (f *fixedSelectorPort) Select(ctx context.Context, req selector.Request) (model.SelectionDecision, error) {
	return f.decision, nil
}

func buildCityRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	poiDir := filepath.Join(root, "rome", "pois")
	require.NoError(t, os.MkdirAll(poiDir, 0o755))

	pois := []model.POI{
		{Slug: "colosseum", Name: "Colosseum", City: "rome", VisitDurationMinutes: 120, HistoricalPeriod: "ancient", Coords: model.Point{Lat: 41.8902, Lon: 12.4922}},
		{Slug: "roman-forum", Name: "Roman Forum", City: "rome", VisitDurationMinutes: 90, HistoricalPeriod: "ancient", Coords: model.Point{Lat: 41.8925, Lon: 12.4853}},
		{Slug: "pantheon", Name: "Pantheon", City: "rome", VisitDurationMinutes: 60, HistoricalPeriod: "ancient", Coords: model.Point{Lat: 41.8986, Lon: 12.4769}},
	}
	for _, p := range pois {
		data, err := json.Marshal(p)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(poiDir, p.Slug+".json"), data, 0o644))
	}
	return root
}

func newPlanner(t *testing.T, decision model.SelectionDecision) *Planner {
	t.Helper()
	return &Planner{
		CatalogRoot: buildCityRoot(t),
		Selector:    &fixedSelectorPort{decision: decision},
		Cache:       distancecache.New(t.TempDir()),
		Provider:    &fakeProvider{},
		Store:       tourstore.New(t.TempDir()),
		Weights:     config.SolverWeights{Distance: 0.5, Coherence: 0.5, Penalty: 0.3},
		Solver: config.SequencerConfig{
			WalkSpeedKMH: 4, TwoOptPasses: 5, Workers: 2, RelativeGap: 0.05,
			StartMinutes: 540, AvgSlotMinutes: 150,
		},
	}
}

func basicInput(mode model.SolveMode) model.PlanInput {
	return model.PlanInput{
		City:        "rome",
		Days:        1,
		Language:    "en",
		Mode:        mode,
		Preferences: model.Preferences{Pace: model.PaceNormal},
	}
}

func TestPlan_SimpleModeProducesSingleVersionTour(t *testing.T) {
	decision := model.SelectionDecision{
		StartingPOIs: []string{"colosseum", "roman-forum", "pantheon"},
		BackupPOIs:   map[string][]model.BackupEntry{},
	}
	p := newPlanner(t, decision)

	tour, meta, _, err := p.Plan(context.Background(), basicInput(model.ModeSimple))
	require.NoError(t, err)
	require.Equal(t, model.StatusGreedy, tour.SolverStats.Status)
	require.NotEmpty(t, tour.Days)
	require.Equal(t, 1, meta.CurrentVersion["en"])

	var totalAssignments int
	for _, d := range tour.Days {
		totalAssignments += len(d.Assignments)
	}
	require.Equal(t, 3, totalAssignments)
}

func TestPlan_RejectsWhenSelectorReturnsNothing(t *testing.T) {
	p := newPlanner(t, model.SelectionDecision{})
	_, _, _, err := p.Plan(context.Background(), basicInput(model.ModeSimple))
	require.Error(t, err)
}

func TestPlan_ScoresAreWithinUnitRange(t *testing.T) {
	decision := model.SelectionDecision{
		StartingPOIs: []string{"colosseum", "roman-forum", "pantheon"},
		BackupPOIs:   map[string][]model.BackupEntry{},
	}
	p := newPlanner(t, decision)

	tour, _, _, err := p.Plan(context.Background(), basicInput(model.ModeSimple))
	require.NoError(t, err)
	require.GreaterOrEqual(t, tour.Scores.DistanceScore, 0.0)
	require.LessOrEqual(t, tour.Scores.DistanceScore, 1.0)
	require.GreaterOrEqual(t, tour.Scores.CoherenceScore, 0.0)
	require.LessOrEqual(t, tour.Scores.CoherenceScore, 1.0)
}

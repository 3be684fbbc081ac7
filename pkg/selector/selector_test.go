package selector

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tripweave/pkg/catalog"
	"tripweave/pkg/model"
)

type fakePort struct {
	decision model.SelectionDecision
	err      error
}

func (f *fakePort) Select(ctx context.Context, req Request) (model.SelectionDecision, error) {
	return f.decision, f.err
}

func buildCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	root := t.TempDir()
	poiDir := filepath.Join(root, "rome", "pois")
	require.NoError(t, os.MkdirAll(poiDir, 0o755))

	pois := []model.POI{
		{Slug: "colosseum", Name: "Colosseum", City: "rome", VisitDurationMinutes: 120, HistoricalPeriod: "ancient", Coords: model.Point{Lat: 41.8902, Lon: 12.4922}},
		{Slug: "roman-forum", Name: "Roman Forum", City: "rome", VisitDurationMinutes: 90, HistoricalPeriod: "ancient", Coords: model.Point{Lat: 41.8925, Lon: 12.4853}},
		{Slug: "palatine-hill", Name: "Palatine Hill", City: "rome", VisitDurationMinutes: 90, HistoricalPeriod: "ancient", Coords: model.Point{Lat: 41.8896, Lon: 12.4870}},
		{Slug: "pantheon", Name: "Pantheon", City: "rome", VisitDurationMinutes: 60, HistoricalPeriod: "ancient", Coords: model.Point{Lat: 41.8986, Lon: 12.4769}},
		{Slug: "vatican-museums", Name: "Vatican Museums", City: "rome", VisitDurationMinutes: 180, HistoricalPeriod: "renaissance", Coords: model.Point{Lat: 41.9065, Lon: 12.4536}},
		{Slug: "trevi-fountain", Name: "Trevi Fountain", City: "rome", VisitDurationMinutes: 30, HistoricalPeriod: "baroque", Coords: model.Point{Lat: 41.9009, Lon: 12.4833}},
	}
	for _, p := range pois {
		data, err := json.Marshal(p)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(poiDir, p.Slug+".json"), data, 0o644))
	}

	cat, issues, err := catalog.LoadCity(root, "rome")
	require.NoError(t, err)
	require.Empty(t, issues)
	return cat
}

func basicInput() model.PlanInput {
	return model.PlanInput{
		City: "rome",
		Days: 2,
		Preferences: model.Preferences{Pace: model.PaceNormal},
		MustSee: []string{"colosseum"},
	}
}

func TestSelect_MustSeeAlwaysIncluded(t *testing.T) {
	cat := buildCatalog(t)
	port := &fakePort{decision: model.SelectionDecision{
		StartingPOIs: []string{"pantheon", "trevi-fountain"},
	}}

	decision, issues := Select(context.Background(), port, cat, basicInput())
	require.Contains(t, decision.StartingPOIs, "colosseum")
	found := false
	for _, iss := range issues {
		if iss.POI == "colosseum" {
			found = true
		}
	}
	require.True(t, found, "expected a warning about reinserting the must-see POI")
}

func TestSelect_CoversEntireCatalog(t *testing.T) {
	cat := buildCatalog(t)
	port := &fakePort{decision: model.SelectionDecision{
		StartingPOIs: []string{"colosseum", "roman-forum"},
	}}

	decision, _ := Select(context.Background(), port, cat, basicInput())

	covered := make(map[string]bool)
	for _, s := range decision.StartingPOIs {
		covered[s] = true
	}
	for _, list := range decision.BackupPOIs {
		for _, b := range list {
			covered[b.POISlug] = true
		}
	}
	for _, r := range decision.RejectedPOIs {
		covered[r.POISlug] = true
	}

	for _, p := range cat.List() {
		require.True(t, covered[p.Slug], "POI %s not covered by starting/backup/rejected", p.Slug)
	}
}

func TestSelect_BackupsWithinSimilarityBounds(t *testing.T) {
	cat := buildCatalog(t)
	port := &fakePort{decision: model.SelectionDecision{
		StartingPOIs: []string{"colosseum", "roman-forum"},
		BackupPOIs: map[string][]model.BackupEntry{
			"colosseum": {{POISlug: "pantheon", SimilarityScore: 1.5}}, // invalid, out of bounds
		},
	}}

	decision, _ := Select(context.Background(), port, cat, basicInput())
	for _, list := range decision.BackupPOIs {
		for _, b := range list {
			require.GreaterOrEqual(t, b.SimilarityScore, 0.6)
			require.LessOrEqual(t, b.SimilarityScore, 1.0)
		}
	}
}

func TestSelect_HoursBudgetCap(t *testing.T) {
	cat := buildCatalog(t)
	input := basicInput()
	input.Days = 1
	input.Preferences.Pace = model.PaceRelaxed // 6 hours budget

	allSlugs := []string{"colosseum", "roman-forum", "palatine-hill", "pantheon", "vatican-museums", "trevi-fountain"}
	port := &fakePort{decision: model.SelectionDecision{StartingPOIs: allSlugs}}

	decision, _ := Select(context.Background(), port, cat, input)

	var total float64
	for _, slug := range decision.StartingPOIs {
		p, err := cat.Get(slug)
		require.NoError(t, err)
		total += p.VisitHours()
	}
	require.LessOrEqual(t, total, 6.0001)
	require.Contains(t, decision.StartingPOIs, "colosseum")
}

func TestSelect_PortErrorFallsBackGracefully(t *testing.T) {
	cat := buildCatalog(t)
	port := &fakePort{err: context.DeadlineExceeded}

	decision, issues := Select(context.Background(), port, cat, basicInput())
	require.Contains(t, decision.StartingPOIs, "colosseum")
	require.NotEmpty(t, issues)
}

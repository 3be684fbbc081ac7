// Package planner ties the POI Catalog, Selector, Distance Cache and
// Sequencer together into the single top-level "plan a new tour" operation
// spec §2's data-flow diagram describes: C1 feeds C4 and C5; C4 produces a
// starting set consumed by C5 or C6; C5/C6 produce a scheduled itinerary
// consumed by C8. Re-optimization of an existing tour is a separate
// concern, handled by pkg/reoptimizer.
package planner

import (
	"context"
	"fmt"
	"math"

	"tripweave/pkg/catalog"
	"tripweave/pkg/coherence"
	"tripweave/pkg/config"
	"tripweave/pkg/distancecache"
	"tripweave/pkg/geoprovider"
	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
	"tripweave/pkg/selector"
	"tripweave/pkg/sequencer"
	"tripweave/pkg/sequencer/greedy"
	"tripweave/pkg/tourstore"
)

// Planner assembles one planning request end to end: it loads the city
// catalog fresh per call (the catalog is read-mostly and cheap to reload;
// pkg/catalog keeps no long-lived state of its own), runs the Selector,
// extends the Distance Cache, sequences the result, and persists the new
// tour through the Tour Store.
type Planner struct {
	CatalogRoot string
	Selector    selector.Port
	Cache       *distancecache.Cache
	Provider    geoprovider.Provider
	Store       *tourstore.Store
	Weights     config.SolverWeights
	Solver      config.SequencerConfig
}

var planModes = []model.TravelMode{model.ModeWalking}

// Plan runs the full selection+sequencing pipeline for one request and
// persists the result as a tour's first version. It returns the tour, the
// store metadata record, and any non-fatal issues surfaced along the way
// (selector reconciliation warnings, dropped catalog entries).
func (p *Planner) Plan(ctx context.Context, input model.PlanInput) (*model.Tour, *model.Metadata, []model.Issue, error) {
	cat, issues, err := catalog.LoadCity(p.CatalogRoot, input.City)
	if err != nil {
		return nil, nil, nil, err
	}

	decision, selIssues := selector.Select(ctx, p.Selector, cat, input)
	issues = append(issues, selIssues...)

	startingPOIs, err := resolveSlugs(cat, decision.StartingPOIs)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(startingPOIs) == 0 {
		return nil, nil, nil, planerr.Invalid("PLAN_EMPTY_SELECTION", "selector returned no starting POIs")
	}

	if _, err := p.Cache.ComputeAll(ctx, input.City, startingPOIs, planModes, p.Provider); err != nil {
		return nil, nil, nil, err
	}
	lookup := greedy.LookupFromCache(p.Cache, input.City)

	days, stats, err := p.sequence(ctx, startingPOIs, input, lookup)
	if err != nil {
		return nil, nil, nil, err
	}
	fillLegs(days, lookup)

	scores := computeScores(days, startingPOIs)

	tour := model.Tour{
		City:        input.City,
		Language:    input.Language,
		Days:        days,
		Scores:      scores,
		BackupPOIs:  decision.BackupPOIs,
		Rejected:    decision.RejectedPOIs,
		Input:       input,
		SolverStats: &stats,
	}

	record := model.GenerationRecord{
		Input:     input,
		Scores:    scores,
		Selection: decision,
	}
	if stats.Status == model.StatusInfeasible {
		record.ConstraintViolations = 1
	}

	meta, err := p.Store.Create(input.City, input, tour, record)
	if err != nil {
		return nil, nil, nil, err
	}
	tour.TourID = meta.TourID
	tour.Version = meta.CurrentVersion[input.Language]

	return &tour, meta, issues, nil
}

func (p *Planner) sequence(ctx context.Context, pois []*model.POI, input model.PlanInput, lookup greedy.LegLookup) ([]model.Day, model.SolverStats, error) {
	if input.Mode == model.ModeSimple {
		days, violated := greedy.Sequence(pois, lookup, greedyParams(p.Weights, p.Solver, input.Preferences.Pace, input.StartDate))
		if len(violated) > 0 {
			return nil, model.SolverStats{}, planerr.Infeasible(sequencer.InfeasibleCode(violated), "no feasible schedule found for this POI set", violated)
		}
		return days, model.SolverStats{Status: model.StatusGreedy}, nil
	}

	result, err := sequencer.Solve(ctx, sequencer.Input{
		POIs:        pois,
		Days:        input.Days,
		Pace:        input.Preferences.Pace,
		ComboGroups: comboGroupsOf(pois),
		Lookup:      sequencer.LegLookup(lookup),
		Weights:     p.Weights,
		Solver:      p.Solver,
		StartDate:   input.StartDate,
	})
	if err != nil {
		if planerr.KindOf(err) != planerr.KindInfeasible {
			return nil, model.SolverStats{}, err
		}
		days, violated := greedy.Sequence(pois, lookup, greedyParams(p.Weights, p.Solver, input.Preferences.Pace, input.StartDate))
		if len(violated) > 0 {
			return nil, model.SolverStats{}, planerr.Infeasible(sequencer.InfeasibleCode(violated), "no feasible schedule found for this POI set", violated)
		}
		return days, model.SolverStats{Status: model.StatusGreedyFallback}, nil
	}
	return result.Days, result.Stats, nil
}

func greedyParams(weights config.SolverWeights, solverCfg config.SequencerConfig, pace model.Pace, startDate string) greedy.Params {
	return greedy.Params{
		DistanceWeight:  weights.Distance,
		CoherenceWeight: weights.Coherence,
		WalkSpeedKMH:    solverCfg.WalkSpeedKMH,
		HoursPerDay:     pace.HoursPerDay(),
		TwoOptPasses:    solverCfg.TwoOptPasses,
		StartDate:       startDate,
		StartMinutes:    solverCfg.StartMinutes,
		AvgSlotMinutes:  solverCfg.AvgSlotMinutes,
	}
}

func resolveSlugs(cat *catalog.Catalog, slugs []string) ([]*model.POI, error) {
	out := make([]*model.POI, 0, len(slugs))
	for _, s := range slugs {
		p, err := cat.Get(s)
		if err != nil {
			return nil, fmt.Errorf("resolving starting POI %q: %w", s, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func comboGroupsOf(pois []*model.POI) []*model.ComboGroup {
	seen := make(map[string]bool)
	var out []*model.ComboGroup
	for _, p := range pois {
		for _, g := range p.ComboGroups {
			if !seen[g.Slug] {
				seen[g.Slug] = true
				out = append(out, g)
			}
		}
	}
	return out
}

// fillLegs populates each assignment's walk-to-next fields from the
// lookup, mirroring the Re-optimizer's own fillDayLegs so a freshly-planned
// tour and a freshly-reoptimized one carry the same per-assignment shape.
func fillLegs(days []model.Day, lookup greedy.LegLookup) {
	for di := range days {
		assignments := days[di].Assignments
		for i := range assignments {
			if i+1 < len(assignments) {
				leg := lookup(assignments[i].POISlug, assignments[i+1].POISlug)
				assignments[i].WalkMinutesToNext = leg.DurationMinutes
				assignments[i].WalkDistanceKMToNext = leg.DistanceKM
			}
		}
	}
}

// computeScores implements spec §4.5's solution-extraction formula:
// distance_score = clip(1 - total_km/(N*3.0), 0, 1), coherence_score = mean
// coherence over consecutive pairs, overall_score = their average.
func computeScores(days []model.Day, pois []*model.POI) model.Scores {
	poiBySlug := make(map[string]*model.POI, len(pois))
	for _, p := range pois {
		poiBySlug[p.Slug] = p
	}

	var totalKM float64
	var n int
	var cohSum float64
	var cohPairs int

	for _, d := range days {
		var dayPOIs []*model.POI
		for i, a := range d.Assignments {
			n++
			if p, ok := poiBySlug[a.POISlug]; ok {
				dayPOIs = append(dayPOIs, p)
			}
			if i+1 < len(d.Assignments) {
				totalKM += a.WalkDistanceKMToNext
			}
		}
		if len(dayPOIs) >= 2 {
			cohSum += coherence.ConsecutivePairwise(dayPOIs) * float64(len(dayPOIs)-1)
			cohPairs += len(dayPOIs) - 1
		}
	}
	if n == 0 {
		return model.Scores{}
	}

	distanceScore := clip(1.0-totalKM/(float64(n)*3.0), 0, 1)
	coherenceScore := 0.5
	if cohPairs > 0 {
		coherenceScore = cohSum / float64(cohPairs)
	}

	return model.Scores{
		DistanceScore:   math.Round(distanceScore*100) / 100,
		CoherenceScore:  math.Round(coherenceScore*100) / 100,
		TotalDistanceKM: math.Round(totalKM*100) / 100,
		OverallScore:    math.Round((distanceScore+coherenceScore)/2*100) / 100,
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

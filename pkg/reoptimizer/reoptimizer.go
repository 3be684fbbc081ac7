// Package reoptimizer implements the three-tier re-optimizer (C7): it takes
// one or more POI replacements against an existing tour and applies the
// smallest optimization strategy that can absorb them, from an in-place
// single-day swap up to a full re-sequence, while keeping backup lists,
// transcript links, and the versioned tour store consistent.
package reoptimizer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"tripweave/pkg/catalog"
	"tripweave/pkg/coherence"
	"tripweave/pkg/config"
	"tripweave/pkg/distancecache"
	"tripweave/pkg/geoprovider"
	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
	"tripweave/pkg/sequencer"
	"tripweave/pkg/sequencer/greedy"
	"tripweave/pkg/tourstore"
)

// Tier names the strategy a replacement event was classified into.
type Tier string

const (
	TierLocalSwap Tier = "local_swap"
	TierDayLevel  Tier = "day_level"
	TierFullTour  Tier = "full_tour"

	// tier1MaxDaySize is the day-size ceiling under which a single
	// replacement stays a local swap (spec §4.7).
	tier1MaxDaySize = 5
	// tier2MaxAffectedDays is the affected-day-count ceiling for day-level
	// reoptimization before a full re-sequence is required.
	tier2MaxAffectedDays = 2
)

// Replacement is one {original, replacement} pair from a replace_poi or
// replace_pois_batch event.
type Replacement struct {
	OriginalSlug    string
	ReplacementSlug string
}

// Event is one re-optimization trigger: a batch of replacements against a
// single tour/language.
type Event struct {
	Language     string
	Replacements []Replacement

	// ForceTier overrides the tier the replacements would otherwise be
	// classified into (spec's HTTP `replace-poi` mode flag: "simple" skips
	// tier classification and always does a bare in-place swap). Leave
	// empty to use spec §4.7's own threshold-based selection.
	ForceTier Tier
}

// Reoptimizer wires the distance cache and geo provider the re-optimization
// path needs; it shares the Tour Store with the rest of the planner so
// applying a replacement is just another version append.
type Reoptimizer struct {
	Store    *tourstore.Store
	Cache    *distancecache.Cache
	Provider geoprovider.Provider
	Modes    []model.TravelMode
	Weights  config.SolverWeights
	Solver   config.SequencerConfig
}

// New returns a Reoptimizer over the given Tour Store and Distance Cache.
func New(store *tourstore.Store, cache *distancecache.Cache, provider geoprovider.Provider, weights config.SolverWeights, solverCfg config.SequencerConfig) *Reoptimizer {
	modes := []model.TravelMode{model.ModeWalking}
	return &Reoptimizer{Store: store, Cache: cache, Provider: provider, Modes: modes, Weights: weights, Solver: solverCfg}
}

// Apply validates and executes a replacement event against city/tourID,
// writing a new tour version through the Tour Store. It returns the tier
// used alongside the updated tour.
func (r *Reoptimizer) Apply(ctx context.Context, cat *catalog.Catalog, city, tourID string, event Event) (*model.Tour, Tier, error) {
	tour, err := r.Store.Load(city, tourID, event.Language)
	if err != nil {
		return nil, "", err
	}

	if err := validate(tour, event); err != nil {
		return nil, "", err
	}

	dayOf := indexTour(tour)
	affectedDays := affectedDaySet(event, dayOf)
	tier := selectTier(tour, event, affectedDays)
	if event.ForceTier != "" {
		tier = event.ForceTier
	}

	allCurrentPOIs, err := resolveAll(cat, tour)
	if err != nil {
		return nil, "", err
	}
	replacementPOIs, err := resolveReplacements(cat, event)
	if err != nil {
		return nil, "", err
	}

	if _, err := r.Cache.Extend(ctx, city, replacementPOIs, allCurrentPOIs, r.Modes, r.Provider); err != nil {
		return nil, "", err
	}
	lookup := sequencer.LegLookup(greedy.LookupFromCache(r.Cache, city))

	newTour := *tour
	newTour.Days = cloneDays(tour.Days)
	newTour.BackupPOIs = cloneBackups(tour.BackupPOIs)

	applyReplacements(&newTour, cat, event)

	switch tier {
	case TierLocalSwap:
		applyTierLocalSwap(&newTour, lookup, affectedDays)
	case TierDayLevel:
		if err := applyTierDayLevel(&newTour, cat, lookup, affectedDays, r.Weights, r.Solver); err != nil {
			return nil, "", err
		}
	default:
		if err := r.applyTierFullTour(ctx, &newTour, cat, lookup); err != nil {
			return nil, "", err
		}
	}

	recomputeScores(&newTour, cat)
	maintainBackups(&newTour, event)

	record, err := r.Store.LoadGenerationRecord(city, tourID, event.Language, firstVersionString(tour.TourID, city, r.Store, event.Language))
	var originalBackups map[string][]model.BackupEntry
	if err == nil && record != nil {
		originalBackups = record.Selection.BackupPOIs
	}
	reconcileBackupSources(&newTour, event, originalBackups)

	if err := r.maintainTranscriptLinks(city, tourID, event); err != nil {
		return nil, "", err
	}

	genRecord := model.GenerationRecord{
		Input:  tour.Input,
		Scores: newTour.Scores,
		Selection: model.SelectionDecision{
			StartingPOIs: slugsOf(newTour),
			BackupPOIs:   newTour.BackupPOIs,
		},
	}

	meta, err := r.Store.AppendVersion(city, tourID, event.Language, newTour, genRecord)
	if err != nil {
		return nil, "", err
	}
	newTour.Version = meta.CurrentVersion[event.Language]

	return &newTour, tier, nil
}

// validate runs the pre-flight checks spec §4.7 requires before any
// mutation: the tour exists (already implied by a successful Load), every
// original is currently in the itinerary, and every replacement is present
// in that original's backup list.
func validate(tour *model.Tour, event Event) error {
	if len(event.Replacements) == 0 {
		return planerr.Invalid("REOPTIMIZE_EMPTY_EVENT", "a replacement event must contain at least one replacement")
	}
	present := make(map[string]bool)
	for _, d := range tour.Days {
		for _, a := range d.Assignments {
			present[a.POISlug] = true
		}
	}
	for _, rep := range event.Replacements {
		if !present[rep.OriginalSlug] {
			return planerr.Invalid("REOPTIMIZE_ORIGINAL_NOT_IN_ITINERARY", fmt.Sprintf("%s is not in the current itinerary", rep.OriginalSlug))
		}
		backups := tour.BackupPOIs[rep.OriginalSlug]
		found := false
		for _, b := range backups {
			if b.POISlug == rep.ReplacementSlug {
				found = true
				break
			}
		}
		if !found {
			return planerr.Invalid("REOPTIMIZE_REPLACEMENT_NOT_A_BACKUP", fmt.Sprintf("%s is not a backup candidate for %s", rep.ReplacementSlug, rep.OriginalSlug))
		}
	}
	return nil
}

func indexTour(tour *model.Tour) map[string]int {
	dayOf := make(map[string]int)
	for _, d := range tour.Days {
		for _, a := range d.Assignments {
			dayOf[a.POISlug] = d.DayNumber
		}
	}
	return dayOf
}

func affectedDaySet(event Event, dayOf map[string]int) []int {
	seen := make(map[int]bool)
	var days []int
	for _, rep := range event.Replacements {
		d := dayOf[rep.OriginalSlug]
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Ints(days)
	return days
}

// selectTier implements spec §4.7's exact thresholds.
func selectTier(tour *model.Tour, event Event, affectedDays []int) Tier {
	if len(event.Replacements) == 1 && len(affectedDays) == 1 {
		for _, d := range tour.Days {
			if d.DayNumber == affectedDays[0] && len(d.Assignments) <= tier1MaxDaySize {
				return TierLocalSwap
			}
		}
	}
	if len(affectedDays) <= tier2MaxAffectedDays {
		return TierDayLevel
	}
	return TierFullTour
}

func resolveAll(cat *catalog.Catalog, tour *model.Tour) ([]*model.POI, error) {
	var pois []*model.POI
	for _, d := range tour.Days {
		for _, a := range d.Assignments {
			p, err := cat.Get(a.POISlug)
			if err != nil {
				return nil, err
			}
			pois = append(pois, p)
		}
	}
	return pois, nil
}

func resolveReplacements(cat *catalog.Catalog, event Event) ([]*model.POI, error) {
	var pois []*model.POI
	for _, rep := range event.Replacements {
		p, err := cat.Get(rep.ReplacementSlug)
		if err != nil {
			return nil, err
		}
		pois = append(pois, p)
	}
	return pois, nil
}

// applyReplacements swaps each original assignment in place for its
// replacement, preserving position and day. Distances/coherence/scores are
// left stale here; the tier application step below recomputes whatever its
// strategy touches.
func applyReplacements(tour *model.Tour, cat *catalog.Catalog, event Event) {
	repFor := make(map[string]string, len(event.Replacements))
	for _, rep := range event.Replacements {
		repFor[rep.OriginalSlug] = rep.ReplacementSlug
	}

	for di := range tour.Days {
		for ai := range tour.Days[di].Assignments {
			a := &tour.Days[di].Assignments[ai]
			newSlug, ok := repFor[a.POISlug]
			if !ok {
				continue
			}
			p, err := cat.Get(newSlug)
			if err != nil {
				continue
			}
			a.POISlug = p.Slug
			a.POIName = p.Name
			a.EstimatedHours = p.VisitHours()
			a.Coords = p.Coords
		}
	}
}

// applyTierLocalSwap recomputes only the affected day's walking legs; the
// assignment itself was already swapped in place by applyReplacements.
func applyTierLocalSwap(tour *model.Tour, lookup sequencer.LegLookup, affectedDays []int) {
	for di := range tour.Days {
		if !containsInt(affectedDays, tour.Days[di].DayNumber) {
			continue
		}
		fillDayLegs(tour.Days[di].Assignments, lookup)
	}
}

// applyTierDayLevel reruns the Greedy Sequencer + 2-opt independently on
// each affected day's POI set, holding every other day fixed. It resolves
// each assignment back through the catalog (rather than using the
// assignment's own minimal fields) so opening hours and booking slots are
// available for spec §4.5's time-window check, anchored to that day's
// real-world weekday via tour.Input.StartDate.
func applyTierDayLevel(tour *model.Tour, cat *catalog.Catalog, lookup sequencer.LegLookup, affectedDays []int, weights config.SolverWeights, solverCfg config.SequencerConfig) error {
	for di := range tour.Days {
		if !containsInt(affectedDays, tour.Days[di].DayNumber) {
			continue
		}
		day := &tour.Days[di]
		pois, err := resolveAssignments(cat, day.Assignments)
		if err != nil {
			return err
		}
		resequenced, violated := greedy.Sequence(pois, greedy.LegLookup(lookup), greedy.Params{
			DistanceWeight:  weights.Distance,
			CoherenceWeight: weights.Coherence,
			WalkSpeedKMH:    solverCfg.WalkSpeedKMH,
			HoursPerDay:     1e9, // never split a single day back into two here; Tier 2 owns exactly one day
			TwoOptPasses:    solverCfg.TwoOptPasses,
			StartDate:       tour.Input.StartDate,
			StartDayOffset:  day.DayNumber - 1,
			StartMinutes:    solverCfg.StartMinutes,
			AvgSlotMinutes:  solverCfg.AvgSlotMinutes,
		})
		if len(violated) > 0 {
			return planerr.Infeasible(sequencer.InfeasibleCode(violated), fmt.Sprintf("day %d has no feasible time-window placement after replacement", day.DayNumber), violated)
		}
		day.Assignments = flattenAssignments(resequenced)
	}
	return nil
}

// applyTierFullTour reruns the full CP core over the tour's entire POI set,
// falling through to the Greedy Sequencer when Solve returns an Infeasible
// error (as the Planner does); the Selector's original decision is reused
// verbatim.
func (r *Reoptimizer) applyTierFullTour(ctx context.Context, tour *model.Tour, cat *catalog.Catalog, lookup sequencer.LegLookup) error {
	var pois []*model.POI
	var combos []*model.ComboGroup
	seenCombo := make(map[string]bool)
	for _, d := range tour.Days {
		for _, a := range d.Assignments {
			p, err := cat.Get(a.POISlug)
			if err != nil {
				return err
			}
			pois = append(pois, p)
			for _, g := range p.ComboGroups {
				if !seenCombo[g.Slug] {
					seenCombo[g.Slug] = true
					combos = append(combos, g)
				}
			}
		}
	}

	result, err := sequencer.Solve(ctx, sequencer.Input{
		POIs:        pois,
		Days:        len(tour.Days),
		Pace:        tour.Input.Preferences.Pace,
		ComboGroups: combos,
		Lookup:      lookup,
		Weights:     r.Weights,
		Solver:      r.Solver,
		StartDate:   tour.Input.StartDate,
	})
	if err != nil {
		if planerr.KindOf(err) != planerr.KindInfeasible {
			return err
		}
		// Fall through to the Greedy Sequencer directly and tag the result
		// greedy_fallback, as the Planner does.
		days, violated := greedy.Sequence(pois, greedy.LegLookup(lookup), greedy.Params{
			DistanceWeight:  r.Weights.Distance,
			CoherenceWeight: r.Weights.Coherence,
			WalkSpeedKMH:    r.Solver.WalkSpeedKMH,
			HoursPerDay:     tour.Input.Preferences.Pace.HoursPerDay(),
			TwoOptPasses:    r.Solver.TwoOptPasses,
			StartDate:       tour.Input.StartDate,
			StartMinutes:    r.Solver.StartMinutes,
			AvgSlotMinutes:  r.Solver.AvgSlotMinutes,
		})
		if len(violated) > 0 {
			return planerr.Infeasible(sequencer.InfeasibleCode(violated), "no feasible schedule found for this tour's POI set", violated)
		}
		tour.Days = days
		tour.SolverStats = &model.SolverStats{Status: model.StatusGreedyFallback}
		return nil
	}
	tour.Days = result.Days
	tour.SolverStats = &result.Stats
	return nil
}

// recomputeScores recomputes the post-hoc scores spec §4.5's solution
// extraction defines, over the tour's current (already-refreshed) walk legs
// and POI set.
func recomputeScores(tour *model.Tour, cat *catalog.Catalog) {
	var totalKM float64
	var n int
	var cohSum float64
	var cohPairs int

	for _, d := range tour.Days {
		var dayPOIs []*model.POI
		for i, a := range d.Assignments {
			n++
			if p, err := cat.Get(a.POISlug); err == nil {
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
		tour.Scores = model.Scores{}
		return
	}

	distanceScore := clip(1.0-totalKM/(float64(n)*3.0), 0, 1)
	coherenceScore := 0.5
	if cohPairs > 0 {
		coherenceScore = cohSum / float64(cohPairs)
	}

	tour.Scores = model.Scores{
		DistanceScore:   math.Round(distanceScore*100) / 100,
		CoherenceScore:  math.Round(coherenceScore*100) / 100,
		TotalDistanceKM: math.Round(totalKM*100) / 100,
		OverallScore:    math.Round((distanceScore+coherenceScore)/2*100) / 100,
	}
}

// maintainBackups implements spec §4.7's backup-list rule for each
// replacement: R's new list starts with O (similarity 1.0, "can swap
// back"), then O's prior backups, then R's own prior backups, deduplicated
// preserving order. O's own entry is removed.
func maintainBackups(tour *model.Tour, event Event) {
	for _, rep := range event.Replacements {
		o, r := rep.OriginalSlug, rep.ReplacementSlug
		oBackups := tour.BackupPOIs[o]
		newList := []model.BackupEntry{{POISlug: o, SimilarityScore: 1.0, Reason: "can swap back"}}
		newList = append(newList, oBackups...)
		newList = dedupeBackups(newList, r)
		tour.BackupPOIs[r] = newList
		delete(tour.BackupPOIs, o)
	}
}

// reconcileBackupSources folds in R's own prior backups from the original
// selection record (spec §4.7's third ingredient), per the tour-document-
// authoritative-after-first-replacement rule from spec §9.
func reconcileBackupSources(tour *model.Tour, event Event, originalSelectionBackups map[string][]model.BackupEntry) {
	for _, rep := range event.Replacements {
		r := rep.ReplacementSlug
		if existing, ok := tour.BackupPOIs[r]; ok && len(existing) > 0 && originalSelectionBackups != nil {
			tour.BackupPOIs[r] = dedupeBackups(append(existing, originalSelectionBackups[r]...), r)
		}
	}
}

func dedupeBackups(entries []model.BackupEntry, excludeSlug string) []model.BackupEntry {
	seen := make(map[string]bool)
	var out []model.BackupEntry
	for _, e := range entries {
		if e.POISlug == "" || e.POISlug == excludeSlug || seen[e.POISlug] {
			continue
		}
		seen[e.POISlug] = true
		out = append(out, e)
	}
	return out
}

// maintainTranscriptLinks updates the transcript link for each replaced POI
// to point at its replacement, reusing whatever transcript version/type was
// already recorded for the replacement (spec §4.7: "the transcript-version
// currently recorded for R").
func (r *Reoptimizer) maintainTranscriptLinks(city, tourID string, event Event) error {
	links, err := r.Store.LoadTranscriptLinks(city, tourID, event.Language)
	if err != nil && planerr.KindOf(err) != planerr.KindNotFound {
		return err
	}

	byPOI := make(map[string]int, len(links))
	for i, l := range links {
		byPOI[l.POISlug] = i
	}

	for _, rep := range event.Replacements {
		rIdx, rHasLink := byPOI[rep.ReplacementSlug]
		oIdx, oHasLink := byPOI[rep.OriginalSlug]
		if !oHasLink {
			continue // nothing was ever linked for the original; nothing to move
		}
		if rHasLink {
			links[oIdx].TranscriptPath = links[rIdx].TranscriptPath
			links[oIdx].TranscriptVersion = links[rIdx].TranscriptVersion
			links[oIdx].TranscriptType = links[rIdx].TranscriptType
		}
		links[oIdx].POISlug = rep.ReplacementSlug
		links[oIdx].POIID = rep.ReplacementSlug
	}

	return r.Store.SaveTranscriptLinks(city, tourID, event.Language, links)
}

func firstVersionString(tourID, city string, store *tourstore.Store, language string) string {
	meta, err := store.LoadMetadata(city, tourID)
	if err != nil {
		return ""
	}
	history := meta.VersionHistory[language]
	if len(history) == 0 {
		return ""
	}
	return history[0].VersionString
}

func slugsOf(tour model.Tour) []string {
	var out []string
	for _, d := range tour.Days {
		for _, a := range d.Assignments {
			out = append(out, a.POISlug)
		}
	}
	return out
}

func cloneDays(days []model.Day) []model.Day {
	out := make([]model.Day, len(days))
	for i, d := range days {
		out[i] = model.Day{DayNumber: d.DayNumber, Assignments: append([]model.Assignment{}, d.Assignments...)}
	}
	return out
}

func cloneBackups(backups map[string][]model.BackupEntry) map[string][]model.BackupEntry {
	out := make(map[string][]model.BackupEntry, len(backups))
	for k, v := range backups {
		out[k] = append([]model.BackupEntry{}, v...)
	}
	return out
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func fillDayLegs(assignments []model.Assignment, lookup sequencer.LegLookup) {
	for i := range assignments {
		if i+1 < len(assignments) {
			leg := lookup(assignments[i].POISlug, assignments[i+1].POISlug)
			assignments[i].WalkMinutesToNext = leg.DurationMinutes
			assignments[i].WalkDistanceKMToNext = leg.DistanceKM
		} else {
			assignments[i].WalkMinutesToNext = 0
			assignments[i].WalkDistanceKMToNext = 0
		}
	}
}

// resolveAssignments looks each assignment's POI back up in the catalog, so
// callers that need opening hours or booking info (unlike the assignment's
// own minimal fields) can get at them.
func resolveAssignments(cat *catalog.Catalog, assignments []model.Assignment) ([]*model.POI, error) {
	out := make([]*model.POI, len(assignments))
	for i, a := range assignments {
		p, err := cat.Get(a.POISlug)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func flattenAssignments(days []model.Day) []model.Assignment {
	var out []model.Assignment
	for _, d := range days {
		out = append(out, d.Assignments...)
	}
	for i := range out {
		out[i].Position = i
	}
	return out
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

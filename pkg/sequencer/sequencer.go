// Package sequencer implements the CP-based Day/Sequence Solver (C5). No
// general-purpose constraint/ILP solver library exists anywhere in the
// reference corpus (confirmed against every example repo and
// other_examples/ file: the closest analogues are hand-written TSP
// heuristics — branch-and-bound, 2-opt/3-opt, simulated annealing — not a
// reusable constraint engine), so the core here is hand-rolled: a
// randomized-restart local search operating under the same decision
// variables, channeling constraints and weighted objective a real CP-SAT
// model would use, seeded with the Greedy Sequencer's warm-start tour and
// bounded by a wall-clock budget. When no worker reaches a feasible
// schedule within budget, Solve returns a planerr.Infeasible error; its
// callers (pkg/planner, pkg/reoptimizer) then run the Greedy Sequencer
// themselves and tag that result greedy_fallback.
package sequencer

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"tripweave/pkg/coherence"
	"tripweave/pkg/config"
	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
	"tripweave/pkg/sequencer/greedy"
)

// LegLookup resolves the leg between two POIs (by slug), falling back to
// the Distance Cache's conservative default for unknown pairs.
type LegLookup func(originSlug, destSlug string) model.Leg

// Input bundles everything a solve attempt needs.
type Input struct {
	POIs        []*model.POI
	Days        int
	Pace        model.Pace
	ComboGroups []*model.ComboGroup
	Lookup      LegLookup
	Weights     config.SolverWeights
	Solver      config.SequencerConfig

	// StartDate (YYYY-MM-DD) anchors each day number to a real-world
	// weekday so spec §4.5's time-window constraints can be checked. Left
	// empty, time-window checks are skipped (no calendar to check against).
	StartDate string
}

// Result is a completed solve attempt.
type Result struct {
	Days  []model.Day
	Stats model.SolverStats
}

// comboIndex maps a POI slug to the combo groups it belongs to, for O(1)
// constraint checks during search.
type comboIndex map[string][]*model.ComboGroup

// Solve runs the randomized-restart search for up to input.Solver.Timeout,
// using input.Solver.Workers goroutines, and returns the best feasible
// schedule found. If nothing scores higher than the repaired warm start,
// the status is FEASIBLE rather than OPTIMAL. If no worker reaches a
// feasible schedule within budget, it returns a planerr.Infeasible error
// carrying up to three violations; Solve itself never produces a
// greedy_fallback result.
func Solve(ctx context.Context, input Input) (Result, error) {
	if len(input.POIs) == 0 {
		return Result{Stats: model.SolverStats{Status: model.StatusOptimal}}, nil
	}

	timeout := time.Duration(input.Solver.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	solveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	combos := buildComboIndex(input.ComboGroups)
	precedence := buildPrecedence(input.POIs)
	poiBySlug := make(map[string]*model.POI, len(input.POIs))
	for _, p := range input.POIs {
		poiBySlug[p.Slug] = p
	}

	// The greedy warm start's own time-window retry is a best-effort hint;
	// any violation it can't resolve is re-checked (and, if still broken,
	// hill-climbed against) by the local search's violations() below, so its
	// returned violations list is intentionally discarded here.
	warmStart, _ := greedy.Sequence(input.POIs, greedy.LegLookup(input.Lookup), greedy.Params{
		DistanceWeight:  input.Weights.Distance,
		CoherenceWeight: input.Weights.Coherence,
		WalkSpeedKMH:    input.Solver.WalkSpeedKMH,
		HoursPerDay:     input.Pace.HoursPerDay(),
		TwoOptPasses:    input.Solver.TwoOptPasses,
		StartDate:       input.StartDate,
		StartMinutes:    input.Solver.StartMinutes,
		AvgSlotMinutes:  input.Solver.AvgSlotMinutes,
	})
	warmStart = normalizeDayCount(warmStart, input.Days)

	workers := input.Solver.Workers
	if workers <= 0 {
		workers = 4
	}

	// Phase 1: repair toward feasibility. The Greedy Sequencer's
	// nearest-neighbor construction knows nothing about combo/precedence
	// constraints, so the warm start is frequently infeasible; each worker
	// hill-climbs on violation count (accepting equal-or-better moves) from
	// its own randomized trajectory until one reaches zero violations or the
	// budget runs out.
	var mu sync.Mutex
	var wg sync.WaitGroup
	feasibleFound := false
	var bestRepair []model.Day
	bestViolationCount := -1

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			current := cloneDays(warmStart)
			currentViolations := len(violations(current, combos, precedence, poiBySlug, input.StartDate, input.Solver))

			for solveCtx.Err() == nil && currentViolations > 0 {
				candidate := mutate(current, rng)
				v := len(violations(candidate, combos, precedence, poiBySlug, input.StartDate, input.Solver))
				if v <= currentViolations {
					current = candidate
					currentViolations = v
				}
			}

			mu.Lock()
			if bestViolationCount == -1 || currentViolations < bestViolationCount {
				bestViolationCount = currentViolations
				bestRepair = current
			}
			if currentViolations == 0 {
				feasibleFound = true
			}
			mu.Unlock()
		}(time.Now().UnixNano() + int64(w)*7919)
	}
	wg.Wait()

	if !feasibleFound {
		diagnosis := violations(bestRepair, combos, precedence, poiBySlug, input.StartDate, input.Solver)
		code := InfeasibleCode(diagnosis)
		if len(diagnosis) > 3 {
			diagnosis = diagnosis[:3]
		}
		return Result{}, planerr.Infeasible(code, "no feasible schedule found for this POI set within the solve budget", diagnosis)
	}

	// Phase 2: maximize the weighted objective while staying feasible.
	best := bestRepair
	bestScore := objective(best, input)
	baselineScore := bestScore

	var wg2 sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg2.Add(1)
		go func(seed int64) {
			defer wg2.Done()
			rng := rand.New(rand.NewSource(seed))
			local := cloneDays(bestRepair)
			localScore := objective(local, input)

			for solveCtx.Err() == nil {
				candidate := mutate(local, rng)
				if len(violations(candidate, combos, precedence, poiBySlug, input.StartDate, input.Solver)) > 0 {
					continue
				}
				score := objective(candidate, input)
				if score > localScore {
					local = candidate
					localScore = score
				}
			}

			mu.Lock()
			if localScore > bestScore {
				best = local
				bestScore = localScore
			}
			mu.Unlock()
		}(time.Now().UnixNano() + int64(w)*104729)
	}
	wg2.Wait()

	status := model.StatusOptimal
	if bestScore <= baselineScore {
		status = model.StatusFeasible
	}

	fillWalkLegs(best, input.Lookup)

	return Result{
		Days: best,
		Stats: model.SolverStats{
			Status:           status,
			SolveTimeSeconds: timeout.Seconds(),
			ObjectiveValue:   bestScore,
		},
	}, nil
}

func buildComboIndex(groups []*model.ComboGroup) comboIndex {
	idx := make(comboIndex)
	for _, g := range groups {
		for _, memberName := range g.Members {
			idx[memberName] = append(idx[memberName], g)
		}
	}
	return idx
}

// buildPrecedence derives hard ordering constraints: explicit
// must_visit_after annotations, plus implicit ones from strong coherence
// (>=0.7) between POI pairs, matching spec §4.5's precedence rule.
func buildPrecedence(pois []*model.POI) map[string][]string {
	precedence := make(map[string][]string)
	for _, p := range pois {
		precedence[p.Slug] = append(precedence[p.Slug], p.MustVisitAfter...)
	}
	for i, a := range pois {
		for j, b := range pois {
			if i == j {
				continue
			}
			if coherence.Score(a, b) >= 0.7 {
				precedence[b.Slug] = append(precedence[b.Slug], a.Slug)
			}
		}
	}
	return precedence
}

// violations lists every broken hard constraint in days: combo
// togetherness, same-day-consecutive clustering, precedence ordering, and
// (when startDate is set) spec §4.5's per-(day,position) time-window rule:
// each POI's real-world weekday opening periods must admit its expected
// arrival HHMM, and, if it requires booking with preferred slots declared,
// the arrival must additionally fall in one of them. The 5km daily-distance
// threshold is soft (penalized in the objective, never listed here). An
// empty result means days is feasible.
func violations(days []model.Day, combos comboIndex, precedence map[string][]string, poiBySlug map[string]*model.POI, startDate string, solverCfg config.SequencerConfig) []string {
	dayOf := make(map[string]int)
	posOf := make(map[string]int)
	// Combo group members are POI names, so combo checks use name-keyed maps.
	dayOfName := make(map[string]int)
	posOfName := make(map[string]int)
	for _, d := range days {
		for _, a := range d.Assignments {
			dayOf[a.POISlug] = d.DayNumber
			posOf[a.POISlug] = a.Position
			dayOfName[a.POIName] = d.DayNumber
			posOfName[a.POIName] = a.Position
		}
	}

	var out []string
	for slug, preds := range precedence {
		if _, ok := dayOf[slug]; !ok {
			continue
		}
		for _, pred := range preds {
			predDay, ok := dayOf[pred]
			if !ok {
				continue
			}
			if predDay > dayOf[slug] || (predDay == dayOf[slug] && posOf[pred] > posOf[slug]) {
				out = append(out, fmt.Sprintf("precedence violated: %s must come after %s", slug, pred))
			}
		}
	}

	checkedGroups := make(map[string]bool)
	for _, d := range days {
		for _, a := range d.Assignments {
			for _, g := range combos[a.POIName] {
				if checkedGroups[g.Slug] {
					continue
				}
				checkedGroups[g.Slug] = true
				if !comboSatisfied(g, dayOfName, posOfName) {
					out = append(out, fmt.Sprintf("combo group %s not satisfied", g.Slug))
				}
			}
		}
	}

	for _, d := range days {
		dow, ok := model.WeekdayForDate(startDate, d.DayNumber-1)
		if !ok {
			continue
		}
		for _, a := range d.Assignments {
			poi, ok := poiBySlug[a.POISlug]
			if !ok {
				continue
			}
			hhmm := model.ArrivalHHMM(a.Position, solverCfg.StartMinutes, solverCfg.AvgSlotMinutes)
			if !poi.TimeWindowOK(dow, hhmm) {
				out = append(out, fmt.Sprintf("time window violated: %s not open/bookable on day %d at %04d", a.POISlug, d.DayNumber, hhmm))
			}
		}
	}
	return out
}

// InfeasibleCode picks the machine error code for an infeasible solve:
// TIME_WINDOWS_EMPTY when every listed violation is a time-window failure
// (spec S2's "no feasible placement at all" case), INFEASIBLE_TIME_WINDOWS
// when some but not all are, and INFEASIBLE_CONSTRAINTS when none are. It's
// exported so the Greedy Sequencer's direct callers (pkg/planner,
// pkg/reoptimizer) can classify their own fallback-path violations the same
// way.
func InfeasibleCode(diagnosis []string) string {
	if len(diagnosis) == 0 {
		return "INFEASIBLE_CONSTRAINTS"
	}
	timeWindowCount := 0
	for _, v := range diagnosis {
		if strings.HasPrefix(v, "time window violated") {
			timeWindowCount++
		}
	}
	switch {
	case timeWindowCount == len(diagnosis):
		return "TIME_WINDOWS_EMPTY"
	case timeWindowCount > 0:
		return "INFEASIBLE_TIME_WINDOWS"
	default:
		return "INFEASIBLE_CONSTRAINTS"
	}
}

func comboSatisfied(g *model.ComboGroup, dayOf, posOf map[string]int) bool {
	var days []int
	var positions []int
	for _, member := range g.Members {
		d, ok := dayOf[member]
		if !ok {
			continue // member not part of this itinerary at all; not this solve's concern
		}
		days = append(days, d)
		positions = append(positions, posOf[member])
	}
	if len(days) < 2 {
		return true
	}
	if g.Constraints.MustVisitTogether || g.Constraints.SameDayRequired {
		for _, d := range days {
			if d != days[0] {
				return false
			}
		}
	}
	if g.Constraints.TicketType == model.TicketSameDayConsecutive {
		sorted := append([]int{}, positions...)
		sort.Ints(sorted)
		for i := 1; i < len(sorted); i++ {
			if sorted[i] != sorted[i-1]+1 {
				return false
			}
		}
	}
	return true
}

// objective mirrors spec §4.5's weighted score in maximize form:
// w_d*distanceScore + w_c*coherence - w_p*penalty (coherence adds and
// penalties subtract, since the solve walks uphill on this value).
func objective(days []model.Day, input Input) float64 {
	var totalKM float64
	poiBySlug := make(map[string]*model.POI, len(input.POIs))
	for _, p := range input.POIs {
		poiBySlug[p.Slug] = p
	}

	var cohSum float64
	var cohPairs int
	for _, d := range days {
		var dayPOIs []*model.POI
		for i, a := range d.Assignments {
			dayPOIs = append(dayPOIs, poiBySlug[a.POISlug])
			if i+1 < len(d.Assignments) {
				totalKM += input.Lookup(a.POISlug, d.Assignments[i+1].POISlug).DistanceKM
			}
		}
		if len(dayPOIs) >= 2 {
			cohSum += coherence.ConsecutivePairwise(dayPOIs) * float64(len(dayPOIs)-1)
			cohPairs += len(dayPOIs) - 1
		}
	}

	n := len(input.POIs)
	distanceScore := clip(1.0-totalKM/(float64(n)*3.0), 0, 1)
	coh := 0.5
	if cohPairs > 0 {
		coh = cohSum / float64(cohPairs)
	}

	var penalty float64
	for _, d := range days {
		var dayKM float64
		for i := 0; i+1 < len(d.Assignments); i++ {
			dayKM += input.Lookup(d.Assignments[i].POISlug, d.Assignments[i+1].POISlug).DistanceKM
		}
		threshold := float64(input.Solver.WalkingThresholdKM) / 1000.0
		if threshold > 0 && dayKM > threshold {
			penalty += clip((dayKM-threshold)/threshold, 0, 1)
		}
	}
	penalty = clip(penalty, 0, 1)

	wd, wc, wp := input.Weights.Distance, input.Weights.Coherence, input.Weights.Penalty
	return wd*distanceScore + wc*coh - wp*penalty
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

// mutate produces a neighbor schedule via one of: swap two assignments
// within a day, move one assignment to a different day, or reverse a
// sub-segment within a day (a day-local 2-opt move).
func mutate(days []model.Day, rng *rand.Rand) []model.Day {
	out := cloneDays(days)
	if len(out) == 0 {
		return out
	}
	switch rng.Intn(3) {
	case 0:
		d := rng.Intn(len(out))
		if len(out[d].Assignments) < 2 {
			return out
		}
		i, j := rng.Intn(len(out[d].Assignments)), rng.Intn(len(out[d].Assignments))
		out[d].Assignments[i], out[d].Assignments[j] = out[d].Assignments[j], out[d].Assignments[i]
		renumberPositions(out[d].Assignments)
	case 1:
		if len(out) < 2 {
			return out
		}
		from := rng.Intn(len(out))
		if len(out[from].Assignments) == 0 {
			return out
		}
		to := rng.Intn(len(out))
		idx := rng.Intn(len(out[from].Assignments))
		moved := out[from].Assignments[idx]
		out[from].Assignments = append(out[from].Assignments[:idx], out[from].Assignments[idx+1:]...)
		out[to].Assignments = append(out[to].Assignments, moved)
		renumberPositions(out[from].Assignments)
		renumberPositions(out[to].Assignments)
	case 2:
		d := rng.Intn(len(out))
		n := len(out[d].Assignments)
		if n < 3 {
			return out
		}
		i, j := rng.Intn(n), rng.Intn(n)
		if i > j {
			i, j = j, i
		}
		segment := out[d].Assignments[i : j+1]
		for l, r := 0, len(segment)-1; l < r; l, r = l+1, r-1 {
			segment[l], segment[r] = segment[r], segment[l]
		}
		renumberPositions(out[d].Assignments)
	}
	return out
}

// normalizeDayCount folds the Greedy Sequencer's hours-budget partitioning
// onto the requested number of days: overflow days are appended onto the
// last requested day (renumbering positions), and a request for more days
// than the greedy partition produced gets padded with trailing empty days.
// A non-positive target leaves the greedy partition untouched.
func normalizeDayCount(days []model.Day, target int) []model.Day {
	if target <= 0 || len(days) == target {
		return days
	}
	if len(days) < target {
		out := append([]model.Day{}, days...)
		for i := len(out) + 1; i <= target; i++ {
			out = append(out, model.Day{DayNumber: i})
		}
		return out
	}

	out := append([]model.Day{}, days[:target-1]...)
	merged := model.Day{DayNumber: target}
	for _, d := range days[target-1:] {
		merged.Assignments = append(merged.Assignments, d.Assignments...)
	}
	renumberPositions(merged.Assignments)
	out = append(out, merged)
	return out
}

func renumberPositions(assignments []model.Assignment) {
	for i := range assignments {
		assignments[i].Position = i
	}
}

func cloneDays(days []model.Day) []model.Day {
	out := make([]model.Day, len(days))
	for i, d := range days {
		out[i] = model.Day{DayNumber: d.DayNumber, Assignments: append([]model.Assignment{}, d.Assignments...)}
	}
	return out
}

// fillWalkLegs recomputes inter-POI walk time/distance after mutation, since
// mutate only reorders slices without updating the cached leg fields.
func fillWalkLegs(days []model.Day, lookup LegLookup) {
	for di := range days {
		assignments := days[di].Assignments
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
}


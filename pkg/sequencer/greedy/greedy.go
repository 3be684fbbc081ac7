// Package greedy implements the Greedy Sequencer (C6): a nearest-neighbor
// construction heuristic refined by 2-opt, partitioned into days by an
// hours-per-day budget. It serves three roles: the fallback path when the
// CP core (pkg/sequencer) times out or proves infeasible, the warm-start
// hint generator the CP core seeds its search with, and the Tier-1/Tier-2
// re-optimizer's local repair engine.
package greedy

import (
	"fmt"

	"tripweave/pkg/coherence"
	"tripweave/pkg/distancecache"
	"tripweave/pkg/model"
)

// Params bundles the knobs the heuristic needs from config.SequencerConfig,
// kept narrow here so this package doesn't import pkg/config.
type Params struct {
	DistanceWeight float64 // w_d
	CoherenceWeight float64 // w_c
	WalkSpeedKMH    float64 // km/h, for estimating walk time folded into day length
	HoursPerDay     float64
	TwoOptPasses    int

	// StartDate (YYYY-MM-DD) and StartDayOffset enable spec §4.5's
	// time-window enforcement: the partition's first output day is treated
	// as StartDayOffset days after StartDate. Leave StartDate empty to skip
	// time-window checks entirely (e.g. when partitioning a POI set that
	// isn't yet anchored to a calendar).
	StartDate      string
	StartDayOffset int
	StartMinutes   int // spec default 540 (09:00)
	AvgSlotMinutes int // spec default 150
}

// LegLookup resolves the walking leg between two POIs, falling back to the
// distance cache's conservative default when the pair is unknown.
type LegLookup func(originSlug, destSlug string) model.Leg

// Sequence builds a complete day-by-day itinerary for pois using
// nearest-neighbor construction plus bounded 2-opt improvement, then
// partitions the resulting order into days at the hours-per-day threshold,
// pushing a POI into the next day when its arrival would otherwise miss
// every opening period or preferred booking slot (spec §4.5). The returned
// violations list describes any POI that still has no feasible day/position
// after that retry; a caller that can't tolerate a degraded itinerary should
// surface it as planerr.Infeasible rather than silently use the result.
func Sequence(pois []*model.POI, lookup LegLookup, params Params) ([]model.Day, []string) {
	if len(pois) == 0 {
		return nil, nil
	}
	order := nearestNeighborOrder(pois, lookup, params)
	order = twoOpt(order, lookup, params)
	return partitionIntoDays(order, lookup, params)
}

// nearestNeighborOrder greedily extends a tour starting from pois[0],
// always choosing the unvisited POI maximizing
// w_d*(1 - d/5km) + w_c*coherence(current, candidate).
func nearestNeighborOrder(pois []*model.POI, lookup LegLookup, params Params) []*model.POI {
	remaining := append([]*model.POI{}, pois...)
	order := []*model.POI{remaining[0]}
	remaining = remaining[1:]

	for len(remaining) > 0 {
		current := order[len(order)-1]
		bestIdx := 0
		bestScore := -1.0
		for i, cand := range remaining {
			leg := lookup(current.Slug, cand.Slug)
			distScore := 1.0 - leg.DistanceKM/5.0
			if distScore < 0 {
				distScore = 0
			}
			coh := coherence.Score(current, cand)
			score := params.DistanceWeight*distScore + params.CoherenceWeight*coh
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		order = append(order, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return order
}

// twoOpt performs up to params.TwoOptPasses full passes of pairwise segment
// reversal, keeping any reversal that reduces total tour distance.
func twoOpt(order []*model.POI, lookup LegLookup, params Params) []*model.POI {
	passes := params.TwoOptPasses
	if passes <= 0 {
		passes = 10
	}
	n := len(order)
	if n < 4 {
		return order
	}

	tourDistance := func(o []*model.POI) float64 {
		var total float64
		for i := 0; i+1 < len(o); i++ {
			total += lookup(o[i].Slug, o[i+1].Slug).DistanceKM
		}
		return total
	}

	for pass := 0; pass < passes; pass++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for j := i + 2; j < n; j++ {
				if i == 0 && j == n-1 {
					continue
				}
				reversed := reverseSegment(order, i+1, j)
				if tourDistance(reversed) < tourDistance(order) {
					order = reversed
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return order
}

func reverseSegment(order []*model.POI, i, j int) []*model.POI {
	out := append([]*model.POI{}, order...)
	for i < j {
		out[i], out[j] = out[j], out[i]
		i++
		j--
	}
	return out
}

// partitionIntoDays greedily assigns the ordered POIs to consecutive days,
// closing a day once adding the next POI (visit hours plus estimated walk
// time at WalkSpeedKMH) would exceed HoursPerDay, or once the next POI's
// expected arrival would land outside every one of its opening periods or
// preferred booking slots (spec §4.5) — that POI gets one retry at position
// 0 of a fresh day before its violation is reported rather than silently
// dropped.
func partitionIntoDays(order []*model.POI, lookup LegLookup, params Params) ([]model.Day, []string) {
	walkSpeed := params.WalkSpeedKMH
	if walkSpeed <= 0 {
		walkSpeed = 4.0
	}
	hoursPerDay := params.HoursPerDay
	if hoursPerDay <= 0 {
		hoursPerDay = 7.5
	}

	var days []model.Day
	var current []model.Assignment
	var currentHours float64
	dayNum := 1
	var violations []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		days = append(days, model.Day{DayNumber: dayNum, Assignments: current})
		dayNum++
		current = nil
		currentHours = 0
	}

	timeWindowOK := func(poi *model.POI, position int) bool {
		dow, ok := model.WeekdayForDate(params.StartDate, params.StartDayOffset+dayNum-1)
		if !ok {
			return true
		}
		hhmm := model.ArrivalHHMM(position, params.StartMinutes, params.AvgSlotMinutes)
		return poi.TimeWindowOK(dow, hhmm)
	}

	for i, p := range order {
		walkHours := 0.0
		if i > 0 {
			prev := order[i-1]
			leg := lookup(prev.Slug, p.Slug)
			walkHours = leg.DistanceKM / walkSpeed
		}
		addition := p.VisitHours() + walkHours

		needsNewDay := len(current) > 0 && currentHours+addition > hoursPerDay
		if !needsNewDay && len(current) > 0 && !timeWindowOK(p, len(current)) {
			needsNewDay = true
		}
		if needsNewDay {
			flush()
			walkHours = 0 // first POI of a new day has no incoming walk charged to the budget
			addition = p.VisitHours()
		}
		if !timeWindowOK(p, len(current)) {
			violations = append(violations, fmt.Sprintf("time window violated: %s has no feasible day/position in this itinerary", p.Slug))
		}

		assignment := model.Assignment{
			POISlug:  p.Slug,
			POIName:  p.Name,
			Position: len(current),
			EstimatedHours: p.VisitHours(),
			Coords:   p.Coords,
		}
		if i+1 < len(order) {
			leg := lookup(p.Slug, order[i+1].Slug)
			assignment.WalkMinutesToNext = leg.DurationMinutes
			assignment.WalkDistanceKMToNext = leg.DistanceKM
		}
		current = append(current, assignment)
		currentHours += addition
	}
	flush()
	return days, violations
}

// LookupFromCache adapts a distancecache.Cache into a LegLookup, applying
// the conservative 2km fallback for unknown pairs.
func LookupFromCache(cache *distancecache.Cache, city string) LegLookup {
	return func(origin, dest string) model.Leg {
		if leg, ok := cache.Lookup(city, origin, dest, model.ModeWalking); ok {
			return leg
		}
		km := distancecache.FallbackKM()
		return model.Leg{DistanceKM: km, DurationMinutes: km / 4.0 * 60.0}
	}
}

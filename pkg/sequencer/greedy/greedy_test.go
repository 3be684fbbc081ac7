package greedy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tripweave/pkg/model"
)

func testLookup(legs map[string]model.Leg) LegLookup {
	return func(origin, dest string) model.Leg {
		if leg, ok := legs[origin+"->"+dest]; ok {
			return leg
		}
		if leg, ok := legs[dest+"->"+origin]; ok {
			return leg
		}
		return model.Leg{DistanceKM: 2.0, DurationMinutes: 30}
	}
}

func TestSequence_NoGapPositions(t *testing.T) {
	pois := []*model.POI{
		{Slug: "a", Name: "A", VisitDurationMinutes: 60},
		{Slug: "b", Name: "B", VisitDurationMinutes: 60},
		{Slug: "c", Name: "C", VisitDurationMinutes: 60},
	}
	lookup := testLookup(map[string]model.Leg{
		"a->b": {DistanceKM: 0.5, DurationMinutes: 10},
		"b->c": {DistanceKM: 0.5, DurationMinutes: 10},
		"a->c": {DistanceKM: 5.0, DurationMinutes: 60},
	})

	days, violations := Sequence(pois, lookup, Params{DistanceWeight: 0.5, CoherenceWeight: 0.5, HoursPerDay: 10, WalkSpeedKMH: 4})
	require.Empty(t, violations)
	require.Len(t, days, 1)
	for i, a := range days[0].Assignments {
		require.Equal(t, i, a.Position)
	}
}

func TestSequence_PartitionsAcrossDaysWhenOverBudget(t *testing.T) {
	pois := []*model.POI{
		{Slug: "a", Name: "A", VisitDurationMinutes: 300},
		{Slug: "b", Name: "B", VisitDurationMinutes: 300},
		{Slug: "c", Name: "C", VisitDurationMinutes: 300},
	}
	lookup := testLookup(nil)

	days, violations := Sequence(pois, lookup, Params{DistanceWeight: 0.5, CoherenceWeight: 0.5, HoursPerDay: 6, WalkSpeedKMH: 4})
	require.Empty(t, violations)
	require.Greater(t, len(days), 1)

	total := 0
	for _, d := range days {
		total += len(d.Assignments)
	}
	require.Equal(t, 3, total)
}

func TestSequence_EmptyInput(t *testing.T) {
	days, violations := Sequence(nil, testLookup(nil), Params{})
	require.Nil(t, days)
	require.Nil(t, violations)
}

func TestSequence_ClosedAllWeekPOIIsReportedAsViolation(t *testing.T) {
	closed := &model.POI{
		Slug: "closed-museum", Name: "Closed Museum", VisitDurationMinutes: 60,
		OpeningHours: &model.OpeningHours{}, // no periods at all: never open
	}
	days, violations := Sequence([]*model.POI{closed}, testLookup(nil), Params{
		DistanceWeight: 0.5, CoherenceWeight: 0.5, HoursPerDay: 10, WalkSpeedKMH: 4,
		StartDate: "2026-08-02", StartMinutes: 540, AvgSlotMinutes: 150,
	})
	require.Len(t, days, 1)
	require.Len(t, violations, 1)
	require.Contains(t, violations[0], "closed-museum")
}

func TestSequence_OpenPOIHasNoTimeWindowViolation(t *testing.T) {
	open := &model.POI{
		Slug: "all-day-park", Name: "All Day Park", VisitDurationMinutes: 60,
		OpeningHours: &model.OpeningHours{Periods: []model.OpeningPeriod{
			{DayOfWeek: 0, OpenHHMM: 0, CloseHHMM: 2359},
			{DayOfWeek: 1, OpenHHMM: 0, CloseHHMM: 2359},
			{DayOfWeek: 2, OpenHHMM: 0, CloseHHMM: 2359},
			{DayOfWeek: 3, OpenHHMM: 0, CloseHHMM: 2359},
			{DayOfWeek: 4, OpenHHMM: 0, CloseHHMM: 2359},
			{DayOfWeek: 5, OpenHHMM: 0, CloseHHMM: 2359},
			{DayOfWeek: 6, OpenHHMM: 0, CloseHHMM: 2359},
		}},
	}
	_, violations := Sequence([]*model.POI{open}, testLookup(nil), Params{
		DistanceWeight: 0.5, CoherenceWeight: 0.5, HoursPerDay: 10, WalkSpeedKMH: 4,
		StartDate: "2026-08-02", StartMinutes: 540, AvgSlotMinutes: 150,
	})
	require.Empty(t, violations)
}

func TestTwoOpt_ImprovesCrossedTour(t *testing.T) {
	// A classic 2-opt-improvable layout: visiting in input order crosses
	// itself; the optimal order avoids that.
	a := &model.POI{Slug: "a"}
	b := &model.POI{Slug: "b"}
	c := &model.POI{Slug: "c"}
	d := &model.POI{Slug: "d"}
	order := []*model.POI{a, c, b, d}

	lookup := testLookup(map[string]model.Leg{
		"a->c": {DistanceKM: 10},
		"c->b": {DistanceKM: 10},
		"b->d": {DistanceKM: 10},
		"a->b": {DistanceKM: 1},
		"b->c": {DistanceKM: 1},
		"c->d": {DistanceKM: 1},
	})

	improved := twoOpt(order, lookup, Params{TwoOptPasses: 10})

	total := func(o []*model.POI) float64 {
		var sum float64
		for i := 0; i+1 < len(o); i++ {
			sum += lookup(o[i].Slug, o[i+1].Slug).DistanceKM
		}
		return sum
	}
	require.LessOrEqual(t, total(improved), total(order))
}

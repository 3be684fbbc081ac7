package sequencer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tripweave/pkg/config"
	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
)

func testPOIs() []*model.POI {
	return []*model.POI{
		{Slug: "colosseum", Name: "Colosseum", VisitDurationMinutes: 120, HistoricalPeriod: "ancient"},
		{Slug: "roman-forum", Name: "Roman Forum", VisitDurationMinutes: 90, HistoricalPeriod: "ancient"},
		{Slug: "palatine-hill", Name: "Palatine Hill", VisitDurationMinutes: 90, HistoricalPeriod: "ancient"},
		{Slug: "pantheon", Name: "Pantheon", VisitDurationMinutes: 60, HistoricalPeriod: "ancient"},
		{Slug: "trevi-fountain", Name: "Trevi Fountain", VisitDurationMinutes: 30, HistoricalPeriod: "baroque"},
		{Slug: "vatican-museums", Name: "Vatican Museums", VisitDurationMinutes: 180, HistoricalPeriod: "renaissance"},
	}
}

func flatLookup(origin, dest string) model.Leg {
	if origin == dest {
		return model.Leg{}
	}
	return model.Leg{DistanceKM: 1.0, DurationMinutes: 15}
}

func testInput(pois []*model.POI) Input {
	return Input{
		POIs:   pois,
		Days:   2,
		Pace:   model.PaceNormal,
		Lookup: flatLookup,
		Weights: config.SolverWeights{Distance: 0.5, Coherence: 0.5, Penalty: 0.3},
		Solver: config.SequencerConfig{
			Timeout:            config.Duration(200 * time.Millisecond),
			Workers:            2,
			WalkingThresholdKM: config.Distance(5000),
			WalkSpeedKMH:       4,
			TwoOptPasses:       5,
		},
	}
}

func TestSolve_ExactlyOnceNoGaps(t *testing.T) {
	input := testInput(testPOIs())
	result, err := Solve(context.Background(), input)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, d := range result.Days {
		for i, a := range d.Assignments {
			require.False(t, seen[a.POISlug], "POI %s scheduled more than once", a.POISlug)
			seen[a.POISlug] = true
			require.Equal(t, i, a.Position)
		}
	}
	require.Len(t, seen, len(input.POIs))
}

func TestSolve_EmptyInput(t *testing.T) {
	result, err := Solve(context.Background(), Input{Lookup: flatLookup})
	require.NoError(t, err)
	require.Equal(t, model.StatusOptimal, result.Stats.Status)
}

func TestSolve_ComboTogethernessHonored(t *testing.T) {
	pois := testPOIs()
	input := testInput(pois)
	input.ComboGroups = []*model.ComboGroup{
		{
			Slug:    "roma-pass",
			Members: []string{"Colosseum", "Roman Forum", "Palatine Hill"},
			Constraints: model.ComboConstraints{MustVisitTogether: true, TicketType: model.TicketSameDayConsecutive},
		},
	}

	result, err := Solve(context.Background(), input)
	require.NoError(t, err)

	dayOf := make(map[string]int)
	posOf := make(map[string]int)
	for _, d := range result.Days {
		for _, a := range d.Assignments {
			dayOf[a.POISlug] = d.DayNumber
			posOf[a.POISlug] = a.Position
		}
	}
	require.Equal(t, dayOf["colosseum"], dayOf["roman-forum"])
	require.Equal(t, dayOf["colosseum"], dayOf["palatine-hill"])

	positions := []int{posOf["colosseum"], posOf["roman-forum"], posOf["palatine-hill"]}
	minP, maxP := positions[0], positions[0]
	for _, p := range positions {
		if p < minP {
			minP = p
		}
		if p > maxP {
			maxP = p
		}
	}
	require.Equal(t, 2, maxP-minP, "combo members must occupy consecutive positions")
}

func TestSolve_DayOfWeekAssignmentsAreSequential(t *testing.T) {
	input := testInput(testPOIs())
	result, err := Solve(context.Background(), input)
	require.NoError(t, err)
	for i, d := range result.Days {
		require.Equal(t, i+1, d.DayNumber)
	}
}

// TestSolve_ClosedOnAssignedDayIsInfeasible mirrors spec scenario S2: a
// single POI that is closed on Sundays cannot be placed in a one-day trip
// that falls on a Sunday, so Solve must report Infeasible with
// TIME_WINDOWS_EMPTY rather than silently schedule it.
func TestSolve_ClosedOnAssignedDayIsInfeasible(t *testing.T) {
	closedSunday := &model.POI{
		Slug: "sunday-closed-market", Name: "Sunday Closed Market", VisitDurationMinutes: 60,
		OpeningHours: &model.OpeningHours{Periods: []model.OpeningPeriod{
			{DayOfWeek: 1, OpenHHMM: 900, CloseHHMM: 1800},
			{DayOfWeek: 2, OpenHHMM: 900, CloseHHMM: 1800},
			{DayOfWeek: 3, OpenHHMM: 900, CloseHHMM: 1800},
			{DayOfWeek: 4, OpenHHMM: 900, CloseHHMM: 1800},
			{DayOfWeek: 5, OpenHHMM: 900, CloseHHMM: 1800},
			{DayOfWeek: 6, OpenHHMM: 900, CloseHHMM: 1800},
			// no DayOfWeek: 0 (Sunday) period at all
		}},
	}
	input := testInput([]*model.POI{closedSunday})
	input.Days = 1
	input.StartDate = "2026-08-02" // a Sunday

	_, err := Solve(context.Background(), input)
	require.Error(t, err)
	require.Equal(t, planerr.KindInfeasible, planerr.KindOf(err))
	require.Equal(t, "TIME_WINDOWS_EMPTY", planerr.CodeOf(err))
}

// TestSolve_MorningOnlyPOIPlacedWithinPreferredSlot mirrors spec scenario
// S3: a POI only bookable in an early preferred slot must land at the
// position whose expected arrival time falls inside that slot.
func TestSolve_MorningOnlyPOIPlacedWithinPreferredSlot(t *testing.T) {
	morningOnly := &model.POI{
		Slug: "morning-only-gallery", Name: "Morning Only Gallery", VisitDurationMinutes: 60,
		OpeningHours: &model.OpeningHours{Periods: []model.OpeningPeriod{
			{DayOfWeek: 1, OpenHHMM: 800, CloseHHMM: 1200},
		}},
		Booking: &model.BookingInfo{
			Required:       true,
			PreferredSlots: []model.TimeSlot{{StartHHMM: 800, EndHHMM: 1000}},
		},
	}
	input := testInput([]*model.POI{morningOnly})
	input.Days = 1
	input.StartDate = "2026-08-03" // a Monday
	input.Solver.StartMinutes = 540
	input.Solver.AvgSlotMinutes = 150

	result, err := Solve(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, result.Days, 1)
	require.Len(t, result.Days[0].Assignments, 1)
	require.LessOrEqual(t, result.Days[0].Assignments[0].Position, 1)
}

package coherence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tripweave/pkg/model"
)

func TestScore_Diagonal(t *testing.T) {
	p := &model.POI{Slug: "colosseum", HistoricalPeriod: "ancient", ConstructionDate: "80 AD"}
	require.Equal(t, 1.0, Score(p, p))
}

func TestScore_SamePeriodStacksBonus(t *testing.T) {
	a := &model.POI{Slug: "a", HistoricalPeriod: "Ancient", ConstructionDate: "80 AD"}
	b := &model.POI{Slug: "b", HistoricalPeriod: "ancient", ConstructionDate: "100 AD"}
	score := Score(a, b)
	require.InDelta(t, 0.9, score, 0.0001) // 0.3 + 0.3 period, + 0.3 date (<50y)
}

func TestScore_DifferentPeriods(t *testing.T) {
	a := &model.POI{Slug: "a", HistoricalPeriod: "ancient"}
	b := &model.POI{Slug: "b", HistoricalPeriod: "renaissance"}
	require.InDelta(t, 0.4, Score(a, b), 0.0001)
}

func TestScore_DifferentPeriodsIsDirectional(t *testing.T) {
	earlier := &model.POI{Slug: "a", HistoricalPeriod: "ancient"}
	later := &model.POI{Slug: "b", HistoricalPeriod: "renaissance"}
	require.InDelta(t, 0.4, Score(earlier, later), 0.0001)
	require.Equal(t, 0.0, Score(later, earlier))
}

func TestScore_MissingInfoContributesNothing(t *testing.T) {
	a := &model.POI{Slug: "a"}
	b := &model.POI{Slug: "b"}
	require.Equal(t, 0.0, Score(a, b))
}

func TestScore_ClampedToOne(t *testing.T) {
	a := &model.POI{Slug: "a", HistoricalPeriod: "medieval", ConstructionDate: "1200"}
	b := &model.POI{Slug: "b", HistoricalPeriod: "medieval", ConstructionDate: "1210"}
	require.LessOrEqual(t, Score(a, b), 1.0)
}

func TestParseYear_BCAndRanges(t *testing.T) {
	y, ok := parseYear("312 BC")
	require.True(t, ok)
	require.Equal(t, -312.0, y)

	y, ok = parseYear("1500-1520")
	require.True(t, ok)
	require.Equal(t, 1510.0, y)

	y, ok = parseYear("19th century")
	require.True(t, ok)
	require.Equal(t, 1850.0, y)

	_, ok = parseYear("")
	require.False(t, ok)
}

func TestMeanPairwise_DefaultsWhenInsufficientPOIs(t *testing.T) {
	require.Equal(t, 0.5, MeanPairwise(nil))
	require.Equal(t, 0.5, MeanPairwise([]*model.POI{{Slug: "a"}}))
}

func TestMeanPairwise_AveragesAllPairs(t *testing.T) {
	a := &model.POI{Slug: "a", HistoricalPeriod: "ancient"}
	b := &model.POI{Slug: "b", HistoricalPeriod: "renaissance"}
	c := &model.POI{Slug: "c"}
	mean := MeanPairwise([]*model.POI{a, b, c})
	require.Greater(t, mean, 0.0)
	require.Less(t, mean, 0.4)
}

func TestConsecutivePairwise_IgnoresNonAdjacentPairs(t *testing.T) {
	a := &model.POI{Slug: "a", HistoricalPeriod: "ancient"}
	b := &model.POI{Slug: "b"} // unknown period: contributes 0 to a<->b and b<->c
	c := &model.POI{Slug: "c", HistoricalPeriod: "ancient"}

	// a and c share a period (would score 0.6 together) but are not
	// adjacent, so ConsecutivePairwise must not see that pair.
	got := ConsecutivePairwise([]*model.POI{a, b, c})
	require.Equal(t, 0.0, got)
}

func TestConsecutivePairwise_DefaultsWhenInsufficientPOIs(t *testing.T) {
	require.Equal(t, 0.5, ConsecutivePairwise(nil))
	require.Equal(t, 0.5, ConsecutivePairwise([]*model.POI{{Slug: "a"}}))
}

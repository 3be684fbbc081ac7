package tourstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
)

func basicTour() model.Tour {
	return model.Tour{
		Language: "en",
		Days: []model.Day{
			{DayNumber: 1, Assignments: []model.Assignment{{POISlug: "colosseum", Position: 0}}},
		},
		Scores:     model.Scores{OverallScore: 0.8},
		BackupPOIs: map[string][]model.BackupEntry{},
	}
}

func basicRecord(input model.PlanInput) model.GenerationRecord {
	return model.GenerationRecord{Input: input, Scores: model.Scores{OverallScore: 0.8}}
}

func TestCreate_WritesAllFilesAndMetadata(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	input := model.PlanInput{City: "rome", Days: 3, Language: "en"}
	meta, err := store.Create("rome", input, basicTour(), basicRecord(input))
	require.NoError(t, err)
	require.NotEmpty(t, meta.TourID)
	require.Equal(t, 1, meta.CurrentVersion["en"])
	require.Len(t, meta.VersionHistory["en"], 1)

	tour, err := store.Load("rome", meta.TourID, "en")
	require.NoError(t, err)
	require.Equal(t, 1, tour.Version)
	require.Equal(t, meta.TourID, tour.TourID)

	record, err := store.LoadGenerationRecord("rome", meta.TourID, "en", meta.VersionHistory["en"][0].VersionString)
	require.NoError(t, err)
	require.Equal(t, 1, record.Version)

	links, err := store.LoadTranscriptLinks("rome", meta.TourID, "en")
	require.NoError(t, err)
	require.Empty(t, links)
}

func TestAppendVersion_AdvancesPointerAfterWrites(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	input := model.PlanInput{City: "rome", Days: 3, Language: "en"}
	meta, err := store.Create("rome", input, basicTour(), basicRecord(input))
	require.NoError(t, err)

	updated := basicTour()
	updated.Scores.OverallScore = 0.9
	meta2, err := store.AppendVersion("rome", meta.TourID, "en", updated, basicRecord(input))
	require.NoError(t, err)
	require.Equal(t, 2, meta2.CurrentVersion["en"])
	require.Len(t, meta2.VersionHistory["en"], 2)

	tour, err := store.Load("rome", meta.TourID, "en")
	require.NoError(t, err)
	require.Equal(t, 2, tour.Version)
	require.Equal(t, 0.9, tour.Scores.OverallScore)

	v1, err := store.LoadVersion("rome", meta.TourID, "en", meta2.VersionHistory["en"][0].VersionString)
	require.NoError(t, err)
	require.Equal(t, 1, v1.Version)
}

func TestLoad_MissingTourIsNotFound(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.Load("rome", "rome-deadbeef", "en")
	require.Error(t, err)
	require.Equal(t, planerr.KindNotFound, planerr.KindOf(err))
}

func TestList_SortsByUpdatedAtDescending(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	input := model.PlanInput{City: "rome", Days: 2, Language: "en"}
	first, err := store.Create("rome", input, basicTour(), basicRecord(input))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := store.Create("rome", input, basicTour(), basicRecord(input))
	require.NoError(t, err)

	summaries, err := store.List()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, second.TourID, summaries[0].TourID)
	require.Equal(t, first.TourID, summaries[1].TourID)
}

func TestHashInput_StableForSameInput(t *testing.T) {
	input := model.PlanInput{City: "rome", Days: 3, Language: "en"}
	require.Equal(t, HashInput(input), HashInput(input))

	other := input
	other.Days = 4
	require.NotEqual(t, HashInput(input), HashInput(other))
}

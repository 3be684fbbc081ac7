package llmselector

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"tripweave/pkg/model"
	"tripweave/pkg/selector"
)

type fakeJSONProvider struct {
	response model.SelectionDecision
	err      error
	lastPrompt string
}

func (f *fakeJSONProvider) GenerateJSON(ctx context.Context, intent, prompt string, target any) error {
	f.lastPrompt = prompt
	if f.err != nil {
		return f.err
	}
	data, err := json.Marshal(f.response)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

func TestPort_Select_ParsesResponse(t *testing.T) {
	fake := &fakeJSONProvider{response: model.SelectionDecision{
		StartingPOIs: []string{"colosseum", "roman-forum"},
		BackupPOIs: map[string][]model.BackupEntry{
			"colosseum": {{POISlug: "pantheon", SimilarityScore: 0.7, Reason: "same era"}},
		},
		ReasoningSummary: "grouped by ancient Rome theme",
	}}
	port := &Port{provider: fake, intent: "select_pois"}

	decision, err := port.Select(context.Background(), selector.Request{
		Input:   model.PlanInput{City: "rome", Days: 3},
		Summary: model.CatalogSummary{TotalPOIs: 10},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"colosseum", "roman-forum"}, decision.StartingPOIs)
	require.Contains(t, fake.lastPrompt, "rome")
	require.Contains(t, fake.lastPrompt, "3-day")
}

func TestPort_Select_PropagatesProviderError(t *testing.T) {
	fake := &fakeJSONProvider{err: context.DeadlineExceeded}
	port := &Port{provider: fake, intent: "select_pois"}

	_, err := port.Select(context.Background(), selector.Request{Input: model.PlanInput{City: "rome", Days: 1}})
	require.Error(t, err)
}

package llmselector

import (
	"context"
	"encoding/json"
	"fmt"

	"tripweave/pkg/model"
	"tripweave/pkg/selector"
)

// jsonProvider is the subset of Client's surface the Port needs, kept
// narrow so tests can substitute a fake without pulling in genai.
type jsonProvider interface {
	GenerateJSON(ctx context.Context, intent, prompt string, target any) error
}

// Port adapts a jsonProvider (normally *Client) to selector.Port.
type Port struct {
	provider jsonProvider
	intent   string
}

// NewPort wraps a Client as a selector.Port using the "select_pois" profile.
func NewPort(client *Client) *Port {
	return &Port{provider: client, intent: "select_pois"}
}

// Select builds a grounding prompt from the catalog summary and traveler
// preferences and asks the model for a structured selection decision.
func (p *Port) Select(ctx context.Context, req selector.Request) (model.SelectionDecision, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return model.SelectionDecision{}, err
	}

	var decision model.SelectionDecision
	if err := p.provider.GenerateJSON(ctx, p.intent, prompt, &decision); err != nil {
		return model.SelectionDecision{}, fmt.Errorf("selector LLM call failed: %w", err)
	}
	return decision, nil
}

func buildPrompt(req selector.Request) (string, error) {
	summaryJSON, err := json.MarshalIndent(req.Summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling catalog summary: %w", err)
	}
	inputJSON, err := json.MarshalIndent(req.Input, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling plan input: %w", err)
	}

	return fmt.Sprintf(`You are planning a %d-day walking tour of %s.

Traveler request:
%s

Catalog summary:
%s

Choose a starting set of 8-12 points of interest that must-see entries are
always included in, and whose total visit hours fit the traveler's pace.
For every starting POI, list 2-3 backup candidates with a similarity score
between 0.6 and 1.0, each sharing category, historical period, or close
proximity with the original. List every other catalog POI you did not
select as rejected, with a short reason.

Respond with JSON matching this shape exactly:
{
  "starting_pois": ["slug", ...],
  "backup_pois": {"slug": [{"poi_slug": "slug", "similarity_score": 0.8, "reason": "..."}]},
  "rejected_pois": [{"poi_slug": "slug", "reason": "..."}],
  "reasoning_summary": "..."
}`, req.Input.Days, req.Input.City, string(inputJSON), string(summaryJSON)), nil
}

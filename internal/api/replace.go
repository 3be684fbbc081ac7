package api

import (
	"encoding/json"
	"net/http"

	"tripweave/pkg/catalog"
	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
	"tripweave/pkg/reoptimizer"
)

// ReplaceHandler serves the two edit endpoints that drive the
// Re-optimizer: a single replacement and a batch of replacements.
type ReplaceHandler struct {
	Reoptimizer *reoptimizer.Reoptimizer
	CatalogRoot string
}

type replacementEntry struct {
	OriginalPOI    string `json:"original_poi"`
	ReplacementPOI string `json:"replacement_poi"`
	Day            int    `json:"day"`
}

// replaceRequest mirrors spec's `replace-poi` body (a single replacement
// flattened into the entry fields) and `replace-pois-batch` body (a
// `replacements` array); both decode into this shape since a batch of one
// is a strict superset of the single-replacement body.
type replaceRequest struct {
	Mode         string             `json:"mode"` // simple|reoptimize
	Language     string             `json:"language"`
	OriginalPOI  string             `json:"original_poi"`
	ReplacementPOI string           `json:"replacement_poi"`
	Day          int                `json:"day"`
	Replacements []replacementEntry `json:"replacements"`
}

func (req replaceRequest) toEvent() reoptimizer.Event {
	event := reoptimizer.Event{Language: req.Language}
	if req.Mode == "simple" {
		event.ForceTier = reoptimizer.TierLocalSwap
	}
	if len(req.Replacements) > 0 {
		for _, e := range req.Replacements {
			event.Replacements = append(event.Replacements, reoptimizer.Replacement{
				OriginalSlug:    e.OriginalPOI,
				ReplacementSlug: e.ReplacementPOI,
			})
		}
		return event
	}
	event.Replacements = []reoptimizer.Replacement{{OriginalSlug: req.OriginalPOI, ReplacementSlug: req.ReplacementPOI}}
	return event
}

type versionSummaryResponse struct {
	TourID  string       `json:"tour_id"`
	Version int          `json:"version"`
	Tier    string       `json:"tier"`
	Scores  model.Scores `json:"scores"`
	Days    []model.Day  `json:"days"`
}

// HandleReplaceOne handles POST /tours/{id}/replace-poi.
func (h *ReplaceHandler) HandleReplaceOne(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r)
}

// HandleReplaceBatch handles POST /tours/{id}/replace-pois-batch.
func (h *ReplaceHandler) HandleReplaceBatch(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r)
}

func (h *ReplaceHandler) handle(w http.ResponseWriter, r *http.Request) {
	tourID := r.PathValue("id")
	city := r.URL.Query().Get("city")
	if city == "" {
		writeError(w, planerr.Invalid("REPLACE_MISSING_CITY", "city query parameter is required"))
		return
	}

	var req replaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, planerr.Invalid("REPLACE_BAD_BODY", "request body is not valid JSON"))
		return
	}

	cat, _, err := catalog.LoadCity(h.CatalogRoot, city)
	if err != nil {
		writeError(w, err)
		return
	}

	tour, tier, err := h.Reoptimizer.Apply(r.Context(), cat, city, tourID, req.toEvent())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, versionSummaryResponse{
		TourID:  tour.TourID,
		Version: tour.Version,
		Tier:    string(tier),
		Scores:  tour.Scores,
		Days:    tour.Days,
	})
}

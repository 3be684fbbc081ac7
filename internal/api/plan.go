package api

import (
	"encoding/json"
	"net/http"

	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
	"tripweave/pkg/planner"
)

// PlanHandler serves the tour-creation endpoint.
type PlanHandler struct {
	Planner *planner.Planner
}

// planRequest mirrors spec's `POST /tours` body.
type planRequest struct {
	City          string             `json:"city"`
	Days          int                `json:"days"`
	Interests     []string           `json:"interests"`
	MustSee       []string           `json:"must_see"`
	Avoid         []string           `json:"avoid"`
	Pace          model.Pace         `json:"pace"`
	Walking       model.WalkingTolerance `json:"walking"`
	Language      string             `json:"language"`
	Mode          model.SolveMode    `json:"mode"`
	StartLocation *model.Point       `json:"start_location"`
	EndLocation   *model.Point       `json:"end_location"`
	StartDate     string             `json:"start_date"`
}

type tourSummaryResponse struct {
	TourID string       `json:"tour_id"`
	City   string       `json:"city"`
	Version int         `json:"version"`
	Scores model.Scores `json:"scores"`
	Days   []model.Day  `json:"days"`
}

// HandlePlan handles POST /tours.
func (h *PlanHandler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, planerr.Invalid("PLAN_BAD_BODY", "request body is not valid JSON"))
		return
	}

	input := model.PlanInput{
		City:      req.City,
		Days:      req.Days,
		Interests: req.Interests,
		MustSee:   req.MustSee,
		Avoid:     req.Avoid,
		Preferences: model.Preferences{
			Pace:             req.Pace,
			WalkingTolerance: req.Walking,
		},
		Mode:          req.Mode,
		StartLocation: req.StartLocation,
		EndLocation:   req.EndLocation,
		StartDate:     req.StartDate,
		Language:      req.Language,
	}

	tour, meta, _, err := h.Planner.Plan(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tourSummaryResponse{
		TourID:  meta.TourID,
		City:    tour.City,
		Version: tour.Version,
		Scores:  tour.Scores,
		Days:    tour.Days,
	})
}

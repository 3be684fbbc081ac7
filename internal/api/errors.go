package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"tripweave/pkg/planerr"
)

// errorResponse is the JSON body written for any failed request, keyed by
// the same stable codes pkg/planerr defines so client code can branch on
// `code` without parsing `message`.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps a planning error to an HTTP status via its Kind and
// writes a JSON error body. Errors that aren't a *planerr.Error are treated
// as an unexpected internal failure.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(planerr.KindOf(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := errorResponse{Code: planerr.CodeOf(err), Message: err.Error()}
	if body.Code == "" {
		body.Code = "INTERNAL"
	}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		slog.Error("failed to encode error response", "error", encErr)
	}
}

func statusFor(kind planerr.Kind) int {
	switch kind {
	case planerr.KindNotFound:
		return http.StatusNotFound
	case planerr.KindInvalid:
		return http.StatusBadRequest
	case planerr.KindInfeasible:
		return http.StatusUnprocessableEntity
	case planerr.KindConflict:
		return http.StatusConflict
	case planerr.KindExternalTransient, planerr.KindExternalUnavailable:
		return http.StatusServiceUnavailable
	case planerr.KindExternalPermanent:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

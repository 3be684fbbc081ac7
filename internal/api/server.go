// Package api exposes the planning pipeline over HTTP: tour creation,
// listing/fetching tours, and the two replacement endpoints that drive the
// re-optimizer. Transport is peripheral to the planning core; this package
// only adapts net/http requests to the pkg/planner and pkg/reoptimizer
// operations and maps planerr.Kind to a status code.
package api

import (
	"log/slog"
	"net/http"
	"time"
)

// NewServer wires the planning HTTP surface onto a fresh ServeMux.
func NewServer(addr string, plan *PlanHandler, tours *TourHandler, replace *ReplaceHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)

	mux.HandleFunc("POST /tours", plan.HandlePlan)
	mux.HandleFunc("GET /tours", tours.HandleList)
	mux.HandleFunc("GET /tours/{id}", tours.HandleGet)
	mux.HandleFunc("POST /tours/{id}/replace-poi", replace.HandleReplaceOne)
	mux.HandleFunc("POST /tours/{id}/replace-pois-batch", replace.HandleReplaceBatch)

	mux.HandleFunc("POST /shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("graceful shutdown requested via API")
		w.WriteHeader(http.StatusOK)
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		mux.ServeHTTP(w, r)
	})

	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}

package api

import (
	"net/http"
	"strconv"

	"tripweave/pkg/planerr"
	"tripweave/pkg/tourstore"
)

// TourHandler serves the read endpoints: listing tours and fetching one
// tour's current (or a specific) version for a language.
type TourHandler struct {
	Store *tourstore.Store
}

// HandleList handles GET /tours.
func (h *TourHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Store.List()
	if err != nil {
		writeError(w, err)
		return
	}
	if city := r.URL.Query().Get("city"); city != "" {
		filtered := summaries[:0]
		for _, s := range summaries {
			if s.City == city {
				filtered = append(filtered, s)
			}
		}
		summaries = filtered
	}
	writeJSON(w, http.StatusOK, summaries)
}

// HandleGet handles GET /tours/{id}?language=L[&version=V]&city=C.
// city is required because the store's on-disk layout keys tours by city
// slug; a future index keyed purely by tour ID is out of scope here.
func (h *TourHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tourID := r.PathValue("id")
	city := r.URL.Query().Get("city")
	language := r.URL.Query().Get("language")
	if city == "" || language == "" {
		writeError(w, planerr.Invalid("TOUR_MISSING_QUERY_PARAMS", "city and language query parameters are required"))
		return
	}

	if raw := r.URL.Query().Get("version"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, planerr.Invalid("TOUR_BAD_VERSION", "version must be an integer"))
			return
		}
		versionString, err := h.resolveVersionString(city, tourID, language, n)
		if err != nil {
			writeError(w, err)
			return
		}
		tour, err := h.Store.LoadVersion(city, tourID, language, versionString)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tour)
		return
	}

	tour, err := h.Store.Load(city, tourID, language)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tour)
}

// resolveVersionString maps a requested version number to its on-disk
// version string (v<N>_<ISO-date>) via the tour's metadata, since the
// store's file layout keys historical versions by that string, not the
// bare integer.
func (h *TourHandler) resolveVersionString(city, tourID, language string, version int) (string, error) {
	meta, err := h.Store.LoadMetadata(city, tourID)
	if err != nil {
		return "", err
	}
	for _, v := range meta.VersionHistory[language] {
		if v.Version == version {
			return v.VersionString, nil
		}
	}
	return "", planerr.NotFound("TOUR_VERSION_NOT_FOUND", "no such tour version")
}

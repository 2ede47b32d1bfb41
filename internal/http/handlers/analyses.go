package handlers

import (
	"net/http"
	"strconv"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// RecentAnalyses lists the most recently stored analyses, newest first.
func (a *App) RecentAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	records, err := a.Cache.Recent(r.Context(), limit)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": records})
}

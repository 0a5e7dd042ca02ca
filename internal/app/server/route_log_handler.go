package server

import (
	"net/http"
	"strconv"

	"ipgate/internal/database"
)

func getRequestLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := database.EventFilter{
		IP:      query.Get("ip"),
		Path:    query.Get("path"),
		Country: query.Get("country"),
	}
	if page, err := strconv.Atoi(query.Get("page")); err == nil {
		filter.Page = page
	}
	if pageSize, err := strconv.Atoi(query.Get("page_size")); err == nil {
		filter.PageSize = pageSize
	}

	events, err := database.ListRequestEvents(r.Context(), filter)
	if err != nil {
		writeError(w, "Failed to load request logs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

func getSuspiciousIPs(w http.ResponseWriter, r *http.Request) {
	entries, err := database.ListSuspiciousEntries(r.Context(), true)
	if err != nil {
		writeError(w, "Failed to load suspicious IPs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

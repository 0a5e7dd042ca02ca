package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"ipgate/internal/api/dto"
	"ipgate/internal/database"
)

const (
	defaultAnalyticsDays = 7
	topPathsLimit        = 10
	topCountriesLimit    = 10
	topIPsLimit          = 20
)

func getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var stats dto.Stats
	var err error

	if stats.TotalRequests, err = database.CountAllEvents(ctx); err != nil {
		writeError(w, "Failed to load statistics", http.StatusInternalServerError)
		return
	}
	if stats.BlockedIPsCount, err = database.CountActiveBlocks(ctx); err != nil {
		writeError(w, "Failed to load statistics", http.StatusInternalServerError)
		return
	}
	if stats.SuspiciousIPsCount, err = database.CountActiveSuspicious(ctx); err != nil {
		writeError(w, "Failed to load statistics", http.StatusInternalServerError)
		return
	}
	if stats.UniqueCountries, err = database.UniqueCountryCount(ctx); err != nil {
		writeError(w, "Failed to load statistics", http.StatusInternalServerError)
		return
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	if stats.RequestsToday, err = database.CountEventsSince(ctx, midnight); err != nil {
		writeError(w, "Failed to load statistics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func getAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days := defaultAnalyticsDays
	if parsed, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && parsed > 0 {
		days = parsed
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	analytics := dto.Analytics{
		Period: fmt.Sprintf("Last %d days", days),
	}

	var err error
	if analytics.TotalRequests, err = database.CountEventsSince(ctx, since); err != nil {
		writeError(w, "Failed to load analytics", http.StatusInternalServerError)
		return
	}
	if analytics.UniqueIPs, err = database.UniqueIPCount(ctx, since); err != nil {
		writeError(w, "Failed to load analytics", http.StatusInternalServerError)
		return
	}
	if analytics.TopPaths, err = database.TopPaths(ctx, since, topPathsLimit); err != nil {
		writeError(w, "Failed to load analytics", http.StatusInternalServerError)
		return
	}
	if analytics.TopCountries, err = database.TopCountries(ctx, since, topCountriesLimit); err != nil {
		writeError(w, "Failed to load analytics", http.StatusInternalServerError)
		return
	}
	if analytics.TopIPs, err = database.TopIPs(ctx, since, topIPsLimit); err != nil {
		writeError(w, "Failed to load analytics", http.StatusInternalServerError)
		return
	}
	if analytics.RequestsByDay, err = database.RequestsByDay(ctx, since); err != nil {
		log.Warn("Failed to compute per-day series", "error", err)
	}

	writeJSON(w, http.StatusOK, analytics)
}

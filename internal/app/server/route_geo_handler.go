package server

import (
	"errors"
	"net"
	"net/http"

	"ipgate/internal/database"
	"ipgate/internal/geo"
)

func getGeolocations(w http.ResponseWriter, r *http.Request) {
	records, err := database.ListGeolocations(r.Context())
	if err != nil {
		writeError(w, "Failed to load geolocations", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func lookupGeolocation(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	if net.ParseIP(ip) == nil {
		writeError(w, "Invalid IP address", http.StatusBadRequest)
		return
	}

	if geoResolver == nil {
		writeError(w, "Geolocation not configured", http.StatusServiceUnavailable)
		return
	}

	location, err := geoResolver.Resolve(r.Context(), ip)
	if err != nil {
		if errors.Is(err, geo.ErrUnavailable) {
			writeJSON(w, http.StatusOK, map[string]string{"ip": ip, "error": "Geolocation unavailable"})
			return
		}
		writeError(w, "Geolocation lookup failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ip": ip, "location": location})
}

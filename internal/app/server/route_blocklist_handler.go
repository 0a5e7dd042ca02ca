package server

import (
	"encoding/json"
	"net"
	"net/http"

	"ipgate/internal/api/dto"
	"ipgate/internal/database"
)

func getBlockedIPs(w http.ResponseWriter, r *http.Request) {
	entries, err := database.ListBlockEntries(r.Context(), true)
	if err != nil {
		writeError(w, "Failed to load blocklist", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func createBlockedIP(w http.ResponseWriter, r *http.Request) {
	var request dto.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if net.ParseIP(request.IP) == nil {
		writeError(w, "Invalid IP address", http.StatusBadRequest)
		return
	}

	entry, created, err := database.CreateBlockEntry(r.Context(), request.IP, request.Reason)
	if err != nil {
		writeError(w, "Failed to create block entry", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, entry)
}

func deactivateBlockedIP(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	if net.ParseIP(ip) == nil {
		writeError(w, "Invalid IP address", http.StatusBadRequest)
		return
	}

	found, err := database.DeactivateBlockEntry(r.Context(), ip)
	if err != nil {
		writeError(w, "Failed to deactivate block entry", http.StatusInternalServerError)
		return
	}
	if !found {
		writeError(w, "No active block for this IP", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "IP block deactivated"})
}

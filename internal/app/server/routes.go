package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"ipgate/internal/auth"
	"ipgate/internal/gate"
	"ipgate/internal/geo"
	"ipgate/internal/notify"
)

var (
	geoResolver *geo.Resolver
	mailer      notify.Notifier
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// OpenRoutes starts the API server. Every route passes through the gate
// middleware first, so blocked clients cannot reach even the login endpoint.
func OpenRoutes(port int, g *gate.Gate, resolver *geo.Resolver, notifier notify.Notifier) error {
	geoResolver = resolver
	mailer = notifier

	router := http.NewServeMux()

	router.HandleFunc("POST /register", registerUser)
	router.HandleFunc("POST /login", loginUser)

	router.Handle("GET /request-logs", auth.RequireAuth(http.HandlerFunc(getRequestLogs)))
	router.Handle("GET /stats", auth.RequireAuth(http.HandlerFunc(getStats)))
	router.Handle("GET /analytics", auth.RequireAuth(http.HandlerFunc(getAnalytics)))
	router.Handle("GET /suspicious-ips", auth.RequireAuth(http.HandlerFunc(getSuspiciousIPs)))

	router.Handle("GET /blocked-ips", auth.RequireAuth(http.HandlerFunc(getBlockedIPs)))
	router.Handle("POST /blocked-ips", auth.IsAdmin(http.HandlerFunc(createBlockedIP)))
	router.Handle("POST /blocked-ips/{ip}/deactivate", auth.IsAdmin(http.HandlerFunc(deactivateBlockedIP)))

	router.Handle("GET /geolocations", auth.RequireAuth(http.HandlerFunc(getGeolocations)))
	router.Handle("GET /geolocation/{ip}", auth.RequireAuth(http.HandlerFunc(lookupGeolocation)))

	router.Handle("POST /notifications/test-email", auth.IsAdmin(http.HandlerFunc(sendTestEmail)))

	log.Debug("Routes opened")

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: enableCORS(g.Middleware(router)),
	}

	log.Infof("Starting ipgate API on port :%d", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

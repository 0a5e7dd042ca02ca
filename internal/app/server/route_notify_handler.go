package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"ipgate/internal/auth"
)

func sendTestEmail(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Email == "" {
		writeError(w, "Email address required", http.StatusBadRequest)
		return
	}
	if !auth.IsValidEmail(payload.Email) {
		writeError(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	if mailer == nil {
		writeError(w, "Notifications not configured", http.StatusServiceUnavailable)
		return
	}

	// Delivery runs out of band; a relay failure is logged, not returned.
	go func(recipient string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		body := "This is a test email from the ipgate security monitor."
		if err := mailer.Send(ctx, recipient, "Test Email - ipgate", body); err != nil {
			log.Error("Test email delivery failed", "recipient", recipient, "error", err)
		}
	}(payload.Email)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Test email queued"})
}

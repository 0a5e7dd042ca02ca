package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"gorm.io/gorm"

	"ipgate/internal/api/dto"
	"ipgate/internal/auth"
	"ipgate/internal/database"
	"ipgate/internal/domain"
	"ipgate/internal/support"
)

func registerUser(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !auth.IsValidEmail(credentials.Email) {
		writeError(w, "Invalid email format", http.StatusBadRequest)
		return
	}
	if len(credentials.Password) < 8 {
		writeError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	if _, err := database.GetUserByEmail(r.Context(), credentials.Email); err == nil {
		writeError(w, "Email already in use", http.StatusConflict)
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, "Failed to query database", http.StatusInternalServerError)
		return
	}

	hashedPassword, err := support.HashPassword(credentials.Password)
	if err != nil {
		writeError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	user := domain.User{
		Email:    credentials.Email,
		Password: hashedPassword,
		Role:     "user",
	}

	// First account becomes the admin.
	if count, err := database.CountUsers(r.Context()); err == nil && count == 0 {
		user.Role = "admin"
	}

	if err := database.CreateUser(r.Context(), &user); err != nil {
		writeError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Role)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"token": token, "role": user.Role})
}

func loginUser(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	user, err := database.GetUserByEmail(r.Context(), credentials.Email)
	if err != nil {
		writeError(w, "User not found", http.StatusUnauthorized)
		return
	}

	if !support.CheckPasswordHash(credentials.Password, user.Password) {
		writeError(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Role)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": user.Role})
}

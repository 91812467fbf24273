package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/whisperline/whisperline-backend/internal/middleware"
	"github.com/whisperline/whisperline-backend/internal/services"
)

// ListUsers returns every other active user with an online flag, for the
// "start a conversation" list.
func ListUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.AuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "missing session token", http.StatusUnauthorized)
		return
	}

	users, err := services.ListUsers(r.Context(), userID)
	if err != nil {
		log.Printf("failed to list users: %v", err)
		http.Error(w, "failed to list users", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

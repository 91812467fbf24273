package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/whisperline/whisperline-backend/internal/middleware"
	"github.com/whisperline/whisperline-backend/internal/services"
)

// ResolveConversation finds (or lazily creates) the two-party conversation
// between the caller and the named peer.
// GET /api/conversations/with/{username}
func ResolveConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.AuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "missing session token", http.StatusUnauthorized)
		return
	}

	peerName := chi.URLParam(r, "username")
	peer, err := services.FindUserByUsername(r.Context(), peerName)
	if err != nil {
		log.Printf("peer lookup failed: %v", err)
		http.Error(w, "failed to resolve conversation", http.StatusInternalServerError)
		return
	}
	if peer == nil {
		http.Error(w, "no such user", http.StatusNotFound)
		return
	}

	convID, err := services.FindOrCreateConversation(r.Context(), userID, peer.ID)
	if err != nil {
		if err == services.ErrSelfConversation {
			http.Error(w, "cannot start a conversation with yourself", http.StatusBadRequest)
			return
		}
		log.Printf("conversation resolve failed: %v", err)
		http.Error(w, "failed to resolve conversation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":         true,
		"conversation_id": convID.String(),
	})
}

// LoadConversationMessages returns the full encrypted packet history for a
// conversation the caller participates in, ascending by storage time.
// GET /api/conversations/{conversationID}/messages
func LoadConversationMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.AuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "missing session token", http.StatusUnauthorized)
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	member, err := services.IsParticipant(r.Context(), convID, userID)
	if err != nil {
		log.Printf("participant check failed: %v", err)
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "you are not part of this conversation", http.StatusForbidden)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	packets, err := services.ListPackets(ctx, convID.String())
	if err != nil {
		log.Printf("history load failed: %v", err)
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(packets)
}

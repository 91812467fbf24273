package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/whisperline/whisperline-backend/internal/handlers"
	"github.com/whisperline/whisperline-backend/internal/middleware"
)

func SetupRoutes(r *chi.Mux) {
	// Auth routes (no session yet)
	r.Post("/api/register", handlers.Register)
	r.Post("/api/login", handlers.Login)
	r.Post("/api/verify_otp", handlers.VerifyOTP)

	// Session-guarded API
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession)
		r.Post("/api/logout", handlers.Logout)
		r.Get("/api/me", handlers.Me)
		r.Get("/api/users", handlers.ListUsers)
		r.Get("/api/conversations/with/{username}", handlers.ResolveConversation)
		r.Get("/api/conversations/{conversationID}/messages", handlers.LoadConversationMessages)
	})

	// WebSocket gateway; authenticates its own token (query param fallback
	// for browser clients).
	r.Get("/ws/chat", handlers.ChatWebSocket)
}

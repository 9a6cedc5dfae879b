package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns chat router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// All routes require authentication
	r.Use(authMiddleware)

	r.Get("/conversations", h.ListConversations)
	r.Get("/conversations/{id}", h.GetConversation)
	r.Get("/unread", h.GetUnreadCount)
	r.Get("/{id}/messages", h.GetMessages)
	r.Put("/{id}/messages", h.MarkRead)
	r.Get("/messages/{id}/edits", h.ListEdits)

	// Writes share the per-user limiter
	r.Group(func(r chi.Router) {
		if h.rateLimiter != nil {
			r.Use(h.rateLimiter.Middleware)
		}
		r.Post("/conversations", h.StartConversation)
		r.Post("/message", h.SendMessage)
		r.Patch("/messages/{id}", h.EditMessage)
		r.Delete("/messages/{id}", h.DeleteMessage)
		r.Post("/messages/{id}/reactions", h.ToggleReaction)
	})

	return r
}

// WSRoute returns the WebSocket handler behind authMiddleware. The token
// may arrive as ?token= since browsers cannot set headers on upgrade.
func (h *Handler) WSRoute(authMiddleware func(http.Handler) http.Handler) http.Handler {
	return authMiddleware(http.HandlerFunc(h.WebSocket))
}

package listing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns listing router. extra mounts endpoints owned by other
// domains under /listings/{id} (offers for the listing, completion).
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler, extra func(r chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.GetByID)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)

	if extra != nil {
		extra(r)
	}
	return r
}

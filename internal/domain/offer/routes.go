package offer

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns offer router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/mine", h.ListMine)
	r.Post("/{listingId}", h.Apply)
	r.Get("/{id}/detail", h.Get)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/accept", h.Accept)
	r.Post("/{id}/reject", h.Reject)
	r.Post("/{id}/withdraw", h.Withdraw)
	return r
}

// ListingRoutes mounts the offer endpoints nested under /listings/{id}.
// The listing router applies auth.
func (h *Handler) ListingRoutes(r chi.Router) {
	r.Get("/{id}/offers", h.ListByListing)
}

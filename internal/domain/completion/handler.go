package completion

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/creditswap/creditswap-api/internal/middleware"
	"github.com/creditswap/creditswap-api/internal/pkg/errorhandler"
	"github.com/creditswap/creditswap-api/internal/pkg/response"
)

// Handler serves listing completion
type Handler struct {
	service *Service
}

// NewHandler creates completion handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListingRoutes mounts completion under /listings/{id}. The listing
// router applies auth.
func (h *Handler) ListingRoutes(r chi.Router) {
	r.Put("/{id}/complete", h.Complete)
}

// Complete handles PUT /listings/{id}/complete
// @Summary Complete a listing and pay the worker
// @Tags Listings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Listing ID"
// @Success 200 {object} response.Response{data=CompletionResponse}
// @Failure 400,402,403,404,409,500 {object} response.Response
// @Router /listings/{id}/complete [put]
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid listing ID")
		return
	}

	res, err := h.service.Complete(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, CompletionResponseFromResult(res))
}

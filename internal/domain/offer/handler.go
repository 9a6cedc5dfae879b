package offer

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/creditswap/creditswap-api/internal/middleware"
	"github.com/creditswap/creditswap-api/internal/pkg/errorhandler"
	"github.com/creditswap/creditswap-api/internal/pkg/response"
	"github.com/creditswap/creditswap-api/internal/pkg/validator"
)

// Handler handles offer HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates offer handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func pageParams(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return page(limit, offset)
}

// Apply handles POST /offers/{listingId}
// @Summary Apply to a listing
// @Tags Offers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param listingId path string true "Listing ID"
// @Param request body ApplyRequest true "Offer"
// @Success 201 {object} response.Response{data=OfferResponse}
// @Failure 400,404,409,422,500 {object} response.Response
// @Router /offers/{listingId} [post]
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuid.Parse(chi.URLParam(r, "listingId"))
	if err != nil {
		response.BadRequest(w, "Invalid listing ID")
		return
	}

	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	o, err := h.service.Apply(r.Context(), middleware.GetUserID(r.Context()), listingID, &req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Created(w, OfferResponseFromEntity(o))
}

// ListMine handles GET /offers/mine?status=
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	items, total, err := h.service.ListMine(r.Context(), middleware.GetUserID(r.Context()),
		Status(r.URL.Query().Get("status")), limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.WithMeta(w, OfferResponsesFromEntities(items), response.NewMeta(total, limit, offset))
}

// ListByListing handles GET /listings/{id}/offers
// @Summary Offers on a listing (poster only)
// @Tags Offers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Listing ID"
// @Success 200 {object} response.Response{data=[]OfferResponse}
// @Failure 400,403,404,500 {object} response.Response
// @Router /listings/{id}/offers [get]
func (h *Handler) ListByListing(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid listing ID")
		return
	}

	limit, offset := pageParams(r)
	items, total, err := h.service.ListByListing(r.Context(), middleware.GetUserID(r.Context()), listingID, limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.WithMeta(w, OfferResponsesFromEntities(items), response.NewMeta(total, limit, offset))
}

// Get handles GET /offers/{id}/detail
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid offer ID")
		return
	}

	o, err := h.service.Get(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, OfferResponseFromEntity(o))
}

// Update handles PUT /offers/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid offer ID")
		return
	}

	var req UpdateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	o, err := h.service.Update(r.Context(), middleware.GetUserID(r.Context()), id, &req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, OfferResponseFromEntity(o))
}

// Accept handles POST /offers/{id}/accept
// @Summary Accept an offer and hire the worker
// @Tags Offers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Offer ID"
// @Success 200 {object} response.Response{data=AcceptResponse}
// @Failure 400,403,404,409,500 {object} response.Response
// @Router /offers/{id}/accept [post]
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid offer ID")
		return
	}

	accepted, rejected, err := h.service.Accept(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	ids := make([]uuid.UUID, len(rejected))
	for i, o := range rejected {
		ids[i] = o.ID
	}
	response.OK(w, AcceptResponse{Offer: OfferResponseFromEntity(accepted), RejectedOfferIDs: ids})
}

// Reject handles POST /offers/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid offer ID")
		return
	}

	o, err := h.service.Reject(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, OfferResponseFromEntity(o))
}

// Withdraw handles POST /offers/{id}/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid offer ID")
		return
	}

	o, err := h.service.Withdraw(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, OfferResponseFromEntity(o))
}

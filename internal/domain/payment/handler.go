package payment

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/creditswap/creditswap-api/internal/middleware"
	"github.com/creditswap/creditswap-api/internal/pkg/errorhandler"
	"github.com/creditswap/creditswap-api/internal/pkg/response"
	"github.com/creditswap/creditswap-api/internal/pkg/validator"
)

// Handler handles payment HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates payment handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the /payments router. Packages are public.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/packages", h.ListPackages)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/purchase", h.Purchase)
		r.Get("/history", h.History)
	})
	return r
}

// ListPackages handles GET /payments/packages
// @Summary Credit packages on sale
// @Tags Payment
// @Produce json
// @Success 200 {object} response.Response{data=[]PackageResponse}
// @Router /payments/packages [get]
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	response.OK(w, PackageResponses(h.service.ListPackages()))
}

// Purchase handles POST /payments/purchase
// @Summary Buy a credit package
// @Description Payment is simulated. Retrying with the same reference_id returns the original receipt.
// @Tags Payment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PurchaseRequest true "Purchase"
// @Success 201 {object} response.Response{data=ReceiptResponse}
// @Success 200 {object} response.Response{data=ReceiptResponse}
// @Failure 400,409,422,500 {object} response.Response
// @Router /payments/purchase [post]
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	receipt, err := h.service.Purchase(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	if receipt.Replayed {
		response.OK(w, ReceiptResponseFromReceipt(receipt))
		return
	}
	response.Created(w, ReceiptResponseFromReceipt(receipt))
}

// History handles GET /payments/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, total, err := h.service.History(r.Context(), middleware.GetUserID(r.Context()), limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	response.WithMeta(w, PaymentResponsesFromEntities(items), response.NewMeta(total, limit, offset))
}

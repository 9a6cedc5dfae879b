package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/creditswap/creditswap-api/internal/domain/credit"
)

// PurchaseRequest for POST /payments/purchase.
// ReferenceID makes the purchase safe to retry.
type PurchaseRequest struct {
	PackageID   string `json:"package_id" validate:"required"`
	Method      string `json:"method" validate:"required,payment_method"`
	ReferenceID string `json:"reference_id" validate:"omitempty,max=128"`
}

// PackageResponse is a package on sale
type PackageResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Credits  int    `json:"credits"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

// PaymentResponse is a settled purchase
type PaymentResponse struct {
	ID            uuid.UUID `json:"id"`
	PackageID     string    `json:"package_id"`
	Method        Method    `json:"method"`
	Credits       int       `json:"credits"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Status        Status    `json:"status"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	TransactionID uuid.UUID `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReceiptResponse is returned by a purchase
type ReceiptResponse struct {
	Payment     *PaymentResponse            `json:"payment"`
	Transaction *credit.TransactionResponse `json:"transaction"`
	Balance     int                         `json:"balance"`
	Replayed    bool                        `json:"replayed"`
}

// PackageResponses converts packages to their public view
func PackageResponses(pkgs []Package) []*PackageResponse {
	out := make([]*PackageResponse, len(pkgs))
	for i, p := range pkgs {
		out[i] = &PackageResponse{
			ID:       p.ID,
			Name:     p.Name,
			Credits:  p.Credits,
			Price:    p.Price(),
			Currency: p.Currency,
		}
	}
	return out
}

// PaymentResponseFromEntity converts a payment
func PaymentResponseFromEntity(p *Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:            p.ID,
		PackageID:     p.PackageID,
		Method:        p.Method,
		Credits:       p.Credits,
		Amount:        formatCents(p.AmountCents),
		Currency:      p.Currency,
		Status:        p.Status,
		ReferenceID:   p.ReferenceID.String,
		TransactionID: p.TransactionID,
		CreatedAt:     p.CreatedAt,
	}
}

// PaymentResponsesFromEntities converts a page of payments
func PaymentResponsesFromEntities(items []*Payment) []*PaymentResponse {
	out := make([]*PaymentResponse, len(items))
	for i, p := range items {
		out[i] = PaymentResponseFromEntity(p)
	}
	return out
}

// ReceiptResponseFromReceipt converts a receipt
func ReceiptResponseFromReceipt(r *Receipt) *ReceiptResponse {
	return &ReceiptResponse{
		Payment:     PaymentResponseFromEntity(r.Payment),
		Transaction: credit.TransactionResponseFromEntity(r.Transaction, r.Payment.UserID),
		Balance:     r.Balance,
		Replayed:    r.Replayed,
	}
}

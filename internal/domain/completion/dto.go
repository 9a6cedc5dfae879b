package completion

import (
	"github.com/google/uuid"

	"github.com/creditswap/creditswap-api/internal/domain/listing"
)

// CompletionResponse is returned by PUT /listings/{id}/complete
type CompletionResponse struct {
	Listing       *listing.ListingResponse `json:"listing"`
	OfferID       uuid.UUID                `json:"offer_id"`
	WorkerID      uuid.UUID                `json:"worker_id"`
	TransactionID uuid.UUID                `json:"transaction_id"`
	Amount        int                      `json:"amount"`
}

// CompletionResponseFromResult converts result to response
func CompletionResponseFromResult(res *Result) *CompletionResponse {
	return &CompletionResponse{
		Listing:       listing.ListingResponseFromEntity(res.Listing),
		OfferID:       res.Offer.ID,
		WorkerID:      res.Offer.WorkerID,
		TransactionID: res.Transaction.ID,
		Amount:        res.Transaction.Amount,
	}
}

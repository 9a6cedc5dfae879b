package offer

import (
	"time"

	"github.com/google/uuid"
)

// ApplyRequest is the body of POST /offers/{listingId}
type ApplyRequest struct {
	Message         string `json:"message" validate:"max=2000"`
	ProposedCredits *int   `json:"proposed_credits" validate:"omitempty,gte=1,lte=100000"`
}

// UpdateOfferRequest is the body of PUT /offers/{id}
type UpdateOfferRequest struct {
	Message         *string `json:"message" validate:"omitempty,max=2000"`
	ProposedCredits *int    `json:"proposed_credits" validate:"omitempty,gte=1,lte=100000"`
}

// OfferResponse represents offer in API
type OfferResponse struct {
	ID              uuid.UUID  `json:"id"`
	ListingID       uuid.UUID  `json:"listing_id"`
	WorkerID        uuid.UUID  `json:"worker_id"`
	PosterID        uuid.UUID  `json:"poster_id"`
	Message         string     `json:"message"`
	ProposedCredits *int       `json:"proposed_credits,omitempty"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
}

// AcceptResponse is returned by POST /offers/{id}/accept
type AcceptResponse struct {
	Offer            *OfferResponse `json:"offer"`
	RejectedOfferIDs []uuid.UUID    `json:"rejected_offer_ids"`
}

// OfferResponseFromEntity converts entity to response
func OfferResponseFromEntity(o *Offer) *OfferResponse {
	resp := &OfferResponse{
		ID:        o.ID,
		ListingID: o.ListingID,
		WorkerID:  o.WorkerID,
		PosterID:  o.PosterID,
		Message:   o.Message,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	if o.ProposedCredits.Valid {
		v := int(o.ProposedCredits.Int32)
		resp.ProposedCredits = &v
	}
	if o.DecidedAt.Valid {
		t := o.DecidedAt.Time
		resp.DecidedAt = &t
	}
	return resp
}

// OfferResponsesFromEntities converts a page of offers
func OfferResponsesFromEntities(items []*Offer) []*OfferResponse {
	out := make([]*OfferResponse, len(items))
	for i, o := range items {
		out[i] = OfferResponseFromEntity(o)
	}
	return out
}

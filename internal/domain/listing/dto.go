package listing

import (
	"time"

	"github.com/google/uuid"
)

// CreateListingRequest is the body of POST /listings
type CreateListingRequest struct {
	Title       string `json:"title" validate:"required,notblank,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Category    string `json:"category" validate:"max=64"`
	Credits     int    `json:"credits" validate:"required,gte=1,lte=100000"`
}

// UpdateListingRequest is the body of PUT /listings/{id}
type UpdateListingRequest struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Category    *string `json:"category" validate:"omitempty,max=64"`
	Credits     *int    `json:"credits" validate:"omitempty,gte=1,lte=100000"`
}

// ListingResponse is the public listing view
type ListingResponse struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category,omitempty"`
	Credits     int        `json:"credits"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListingResponseFromEntity converts entity to response
func ListingResponseFromEntity(l *Listing) *ListingResponse {
	resp := &ListingResponse{
		ID:          l.ID,
		OwnerID:     l.OwnerID,
		Title:       l.Title,
		Description: l.Description,
		Category:    l.Category,
		Credits:     l.Credits,
		Status:      l.Status,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
	if l.CompletedAt.Valid {
		t := l.CompletedAt.Time
		resp.CompletedAt = &t
	}
	return resp
}

package listing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditswap/creditswap-api/internal/pkg/database"
)

// Service handles listing CRUD. Status transitions belong to the offer
// and completion flows.
type Service struct {
	repo Repository
	tx   database.Transactor
}

// NewService creates listing service
func NewService(repo Repository, tx database.Transactor) *Service {
	return &Service{repo: repo, tx: tx}
}

// Create posts a new open listing owned by ownerID
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req *CreateListingRequest) (*Listing, error) {
	now := time.Now().UTC()
	l := &Listing{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.ToLower(strings.TrimSpace(req.Category)),
		Credits:     req.Credits,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, err
	}

	log.Info().
		Str("listing_id", l.ID.String()).
		Str("owner_id", ownerID.String()).
		Int("credits", l.Credits).
		Msg("Listing created")
	return l, nil
}

// GetByID returns listing or ErrListingNotFound
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Listing, error) {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrListingNotFound
	}
	return l, nil
}

// List returns a filtered page of listings
func (s *Service) List(ctx context.Context, f Filter) ([]*Listing, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, f)
}

// Update edits an open listing. Owner only.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, req *UpdateListingRequest) (*Listing, error) {
	l, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.IsOwnedBy(actorID) {
		return nil, ErrNotOwner
	}
	if !l.IsOpen() {
		return nil, ErrNotOpen
	}

	if req.Title != nil {
		l.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		l.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		l.Category = strings.ToLower(strings.TrimSpace(*req.Category))
	}
	if req.Credits != nil {
		l.Credits = *req.Credits
	}

	if err := s.repo.Update(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Delete removes an open listing nobody has applied to. Owner only.
// Offers keep their conversation tied to the listing, so a listing with
// offers stays until its lifecycle ends.
func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// Apply locks the same row, so no offer can slip in between.
		l, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if l == nil {
			return ErrListingNotFound
		}
		if !l.IsOwnedBy(actorID) {
			return ErrNotOwner
		}
		if !l.IsOpen() {
			return ErrNotOpen
		}

		offers, err := s.repo.CountOffers(ctx, id)
		if err != nil {
			return err
		}
		if offers > 0 {
			return ErrHasOffers.WithDetails(map[string]any{"offers": offers})
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}

		log.Info().
			Str("listing_id", id.String()).
			Str("owner_id", actorID.String()).
			Msg("Listing deleted")
		return nil
	})
}

package offer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/creditswap/creditswap-api/internal/pkg/database"
)

// Repository defines offer data access
type Repository interface {
	Create(ctx context.Context, o *Offer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Offer, error)
	// GetForUpdate row-locks the offer for the rest of the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Offer, error)
	GetByListingAndWorker(ctx context.Context, listingID, workerID uuid.UUID) (*Offer, error)
	GetAcceptedByListing(ctx context.Context, listingID uuid.UUID) (*Offer, error)
	ListByListing(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]*Offer, int, error)
	ListByWorker(ctx context.Context, workerID uuid.UUID, status Status, limit, offset int) ([]*Offer, int, error)
	// UpdateTerms writes message and proposed credits of a pending offer.
	UpdateTerms(ctx context.Context, o *Offer) (bool, error)
	// TransitionStatus moves the offer from -> to and reports whether a row changed.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
	// RejectSiblings rejects every other pending offer on the listing and
	// returns the rejected rows.
	RejectSiblings(ctx context.Context, listingID, acceptedID uuid.UUID) ([]*Offer, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates offer repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const offerColumns = `id, listing_id, worker_id, poster_id, message, proposed_credits, status, created_at, updated_at, decided_at`

func (r *repository) Create(ctx context.Context, o *Offer) error {
	_, err := database.Conn(ctx, r.db).NamedExecContext(ctx, `
		INSERT INTO offers (id, listing_id, worker_id, poster_id, message, proposed_credits, status, created_at, updated_at)
		VALUES (:id, :listing_id, :worker_id, :poster_id, :message, :proposed_credits, :status, :created_at, :updated_at)
	`, o)
	if database.IsUniqueViolation(err, "offers_listing_worker_key") {
		return ErrAlreadyApplied
	}
	if err != nil {
		return fmt.Errorf("offer repository create: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Offer, error) {
	return r.get(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id)
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Offer, error) {
	return r.get(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) GetByListingAndWorker(ctx context.Context, listingID, workerID uuid.UUID) (*Offer, error) {
	return r.get(ctx, `SELECT `+offerColumns+` FROM offers WHERE listing_id = $1 AND worker_id = $2`, listingID, workerID)
}

func (r *repository) GetAcceptedByListing(ctx context.Context, listingID uuid.UUID) (*Offer, error) {
	return r.get(ctx, `SELECT `+offerColumns+` FROM offers WHERE listing_id = $1 AND status = 'accepted'`, listingID)
}

func (r *repository) get(ctx context.Context, query string, args ...interface{}) (*Offer, error) {
	var o Offer
	err := database.Conn(ctx, r.db).GetContext(ctx, &o, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("offer repository get: %w", err)
	}
	return &o, nil
}

func (r *repository) ListByListing(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]*Offer, int, error) {
	conn := database.Conn(ctx, r.db)

	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM offers WHERE listing_id = $1`, listingID); err != nil {
		return nil, 0, fmt.Errorf("offer repository count: %w", err)
	}

	items := make([]*Offer, 0)
	err := conn.SelectContext(ctx, &items, `
		SELECT `+offerColumns+` FROM offers
		WHERE listing_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, listingID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("offer repository list by listing: %w", err)
	}
	return items, total, nil
}

func (r *repository) ListByWorker(ctx context.Context, workerID uuid.UUID, status Status, limit, offset int) ([]*Offer, int, error) {
	conn := database.Conn(ctx, r.db)

	var total int
	if err := conn.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM offers WHERE worker_id = $1 AND ($2 = '' OR status = $2)
	`, workerID, status); err != nil {
		return nil, 0, fmt.Errorf("offer repository count: %w", err)
	}

	items := make([]*Offer, 0)
	err := conn.SelectContext(ctx, &items, `
		SELECT `+offerColumns+` FROM offers
		WHERE worker_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, workerID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("offer repository list by worker: %w", err)
	}
	return items, total, nil
}

func (r *repository) UpdateTerms(ctx context.Context, o *Offer) (bool, error) {
	result, err := database.Conn(ctx, r.db).NamedExecContext(ctx, `
		UPDATE offers
		SET message = :message, proposed_credits = :proposed_credits, updated_at = :updated_at
		WHERE id = :id AND status = 'pending'
	`, o)
	if err != nil {
		return false, fmt.Errorf("offer repository update terms: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("offer repository update terms: %w", err)
	}
	return rows == 1, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE offers SET status = $3, updated_at = NOW(), decided_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if database.IsUniqueViolation(err, "offers_one_accepted_per_listing") {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("offer repository transition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("offer repository transition: %w", err)
	}
	return rows == 1, nil
}

func (r *repository) RejectSiblings(ctx context.Context, listingID, acceptedID uuid.UUID) ([]*Offer, error) {
	items := make([]*Offer, 0)
	err := database.Conn(ctx, r.db).SelectContext(ctx, &items, `
		UPDATE offers SET status = 'rejected', updated_at = NOW(), decided_at = NOW()
		WHERE listing_id = $1 AND id <> $2 AND status = 'pending'
		RETURNING `+offerColumns,
		listingID, acceptedID)
	if err != nil {
		return nil, fmt.Errorf("offer repository reject siblings: %w", err)
	}
	return items, nil
}

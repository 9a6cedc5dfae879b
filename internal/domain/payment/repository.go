package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/creditswap/creditswap-api/internal/pkg/database"
)

// Repository defines payment data access
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByReference(ctx context.Context, referenceID string) (*Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Payment, int, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates payment repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (
			id, user_id, package_id, method, credits, amount_cents, currency,
			status, reference_id, transaction_id, created_at
		) VALUES (
			:id, :user_id, :package_id, :method, :credits, :amount_cents, :currency,
			:status, :reference_id, :transaction_id, :created_at
		)
	`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, p); err != nil {
		if database.IsUniqueViolation(err, "payments_reference_id_key") {
			return ErrReferenceReused
		}
		return fmt.Errorf("payment repository create: %w", err)
	}
	return nil
}

func (r *repository) GetByReference(ctx context.Context, referenceID string) (*Payment, error) {
	query := `SELECT * FROM payments WHERE reference_id = $1`
	var p Payment
	err := database.Conn(ctx, r.db).GetContext(ctx, &p, query, referenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("payment repository get by reference: %w", err)
	}
	return &p, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	conn := database.Conn(ctx, r.db)

	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM payments WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("payment repository count: %w", err)
	}

	query := `
		SELECT * FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var payments []*Payment
	if err := conn.SelectContext(ctx, &payments, query, userID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("payment repository list: %w", err)
	}
	return payments, total, nil
}

package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/creditswap/creditswap-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

// Repository is the ledger store. Balance changes and ledger inserts are
// only consistent when executed inside one database.Transactor unit.
type Repository interface {
	Debit(ctx context.Context, userID uuid.UUID, amount int) error
	Credit(ctx context.Context, userID uuid.UUID, amount int) error
	Insert(ctx context.Context, t *Transaction) error
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)
	GetByReference(ctx context.Context, receiverID uuid.UUID, referenceID string) (*Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, int, error)
	LedgerSum(ctx context.Context, userID uuid.UUID) (int, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates the Postgres ledger repository.
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// Debit subtracts amount only when the balance covers it.
func (r *repository) Debit(ctx context.Context, userID uuid.UUID, amount int) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	conn := database.Conn(ctx, r.db)
	result, err := conn.ExecContext(ctx2, `
		UPDATE users
		SET credits = credits - $2, updated_at = NOW()
		WHERE id = $1 AND credits >= $2
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("%w: debit: %v", ErrInternal, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrInternal, err)
	}
	if rows == 0 {
		if _, err := r.GetBalance(ctx, userID); err != nil {
			return err
		}
		return ErrInsufficientCredits
	}
	return nil
}

func (r *repository) Credit(ctx context.Context, userID uuid.UUID, amount int) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := database.Conn(ctx, r.db).ExecContext(ctx2, `
		UPDATE users
		SET credits = credits + $2, updated_at = NOW()
		WHERE id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("%w: credit: %v", ErrInternal, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrInternal, err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *repository) Insert(ctx context.Context, t *Transaction) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := database.Conn(ctx, r.db).NamedExecContext(ctx2, `
		INSERT INTO transactions (
			id, sender_id, receiver_id, amount, type, status,
			related_entity_type, related_entity_id, reference_id, description, created_at
		) VALUES (
			:id, :sender_id, :receiver_id, :amount, :type, :status,
			:related_entity_type, :related_entity_id, :reference_id, :description, :created_at
		)
	`, t)
	if err != nil {
		if database.IsUniqueViolation(err, "transactions_reference_id_key") {
			return ErrReferenceConflict
		}
		return fmt.Errorf("%w: insert ledger: %v", ErrInternal, err)
	}
	return nil
}

func (r *repository) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int
	err := database.Conn(ctx, r.db).GetContext(ctx2, &balance, `SELECT credits FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: get balance: %v", ErrInternal, err)
	}
	return balance, nil
}

const transactionColumns = `id, sender_id, receiver_id, amount, type, status,
	related_entity_type, related_entity_id, reference_id, description, created_at`

func (r *repository) GetByReference(ctx context.Context, receiverID uuid.UUID, referenceID string) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t Transaction
	err := database.Conn(ctx, r.db).GetContext(ctx2, &t, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE receiver_id = $1 AND reference_id = $2
	`, receiverID, referenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get by reference: %v", ErrInternal, err)
	}
	return &t, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	conn := database.Conn(ctx, r.db)

	var total int
	if err := conn.GetContext(ctx2, &total, `
		SELECT COUNT(*) FROM transactions WHERE receiver_id = $1 OR sender_id = $1
	`, userID); err != nil {
		return nil, 0, fmt.Errorf("%w: count transactions: %v", ErrInternal, err)
	}

	items := make([]*Transaction, 0)
	if err := conn.SelectContext(ctx2, &items, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE receiver_id = $1 OR sender_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("%w: list transactions: %v", ErrInternal, err)
	}
	return items, total, nil
}

// LedgerSum is the signed sum of every entry touching userID.
func (r *repository) LedgerSum(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var sum int
	err := database.Conn(ctx, r.db).GetContext(ctx2, &sum, `
		SELECT
			COALESCE(SUM(CASE WHEN receiver_id = $1 THEN amount ELSE 0 END), 0)
			- COALESCE(SUM(CASE WHEN sender_id = $1 THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE receiver_id = $1 OR sender_id = $1
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: ledger sum: %v", ErrInternal, err)
	}
	return sum, nil
}

package listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/creditswap/creditswap-api/internal/pkg/database"
)

// Repository defines listing data access
type Repository interface {
	Create(ctx context.Context, l *Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*Listing, error)
	// GetForUpdate row-locks the listing for the rest of the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Listing, error)
	List(ctx context.Context, f Filter) ([]*Listing, int, error)
	Update(ctx context.Context, l *Listing) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountOffers(ctx context.Context, id uuid.UUID) (int, error)
	// TransitionStatus moves the listing from -> to and reports whether a row changed.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates listing repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const listingColumns = `id, owner_id, title, description, category, credits, status, created_at, updated_at, completed_at`

func (r *repository) Create(ctx context.Context, l *Listing) error {
	_, err := database.Conn(ctx, r.db).NamedExecContext(ctx, `
		INSERT INTO listings (id, owner_id, title, description, category, credits, status, created_at, updated_at)
		VALUES (:id, :owner_id, :title, :description, :category, :credits, :status, :created_at, :updated_at)
	`, l)
	if err != nil {
		return fmt.Errorf("listing repository create: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Listing, error) {
	return r.get(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Listing, error) {
	return r.get(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) get(ctx context.Context, query string, id uuid.UUID) (*Listing, error) {
	var l Listing
	err := database.Conn(ctx, r.db).GetContext(ctx, &l, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing repository get: %w", err)
	}
	return &l, nil
}

func (r *repository) List(ctx context.Context, f Filter) ([]*Listing, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.OwnerID != nil {
		add("owner_id = $%d", *f.OwnerID)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add("(title ILIKE $%[1]d OR description ILIKE $%[1]d)", "%"+q+"%")
	}
	clause := strings.Join(where, " AND ")

	conn := database.Conn(ctx, r.db)

	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM listings WHERE `+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("listing repository count: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM listings WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		listingColumns, clause, len(args)-1, len(args))

	items := make([]*Listing, 0)
	if err := conn.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("listing repository list: %w", err)
	}
	return items, total, nil
}

// Update writes editable fields. Only open listings are editable.
func (r *repository) Update(ctx context.Context, l *Listing) error {
	l.UpdatedAt = time.Now().UTC()
	result, err := database.Conn(ctx, r.db).NamedExecContext(ctx, `
		UPDATE listings
		SET title = :title, description = :description, category = :category,
		    credits = :credits, updated_at = :updated_at
		WHERE id = :id AND status = 'open'
	`, l)
	if err != nil {
		return fmt.Errorf("listing repository update: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotOpen
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM listings WHERE id = $1 AND status = 'open'`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err, "offers_listing_id_fkey") {
			return ErrHasOffers
		}
		return fmt.Errorf("listing repository delete: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotOpen
	}
	return nil
}

func (r *repository) CountOffers(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &n,
		`SELECT COUNT(*) FROM offers WHERE listing_id = $1`, id); err != nil {
		return 0, fmt.Errorf("listing repository count offers: %w", err)
	}
	return n, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	query := `UPDATE listings SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	if to == StatusCompleted {
		query = `UPDATE listings SET status = $3, updated_at = NOW(), completed_at = NOW() WHERE id = $1 AND status = $2`
	}

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("listing repository transition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("listing repository transition: %w", err)
	}
	return rows == 1, nil
}

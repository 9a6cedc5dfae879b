package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/creditswap/creditswap-api/internal/pkg/database"
)

// Repository defines user data access interface
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error)
}

// repository implements Repository
type repository struct {
	db *sqlx.DB
}

// NewRepository creates new user repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const userColumns = `id, email, password_hash, display_name, role, credits, created_at, updated_at`

// Create inserts the user with a zero balance; signup credits are granted
// through the ledger in the same unit of work.
func (r *repository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, email, password_hash, display_name, role, credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
	`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		u.ID, strings.ToLower(u.Email), u.PasswordHash, u.DisplayName, u.Role, u.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("user repository create: %w", err)
	}
	u.Credits = 0
	u.UpdatedAt = u.CreatedAt
	return nil
}

// GetByID returns user by ID, nil when missing
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := database.Conn(ctx, r.db).GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user repository get: %w", err)
	}
	return &u, nil
}

// GetByEmail returns user by email, nil when missing
func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := database.Conn(ctx, r.db).GetContext(ctx, &u,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user repository get by email: %w", err)
	}
	return &u, nil
}

// GetByIDs loads several users at once, keyed by id.
func (r *repository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error) {
	out := make(map[uuid.UUID]*User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	conn := database.Conn(ctx, r.db)

	var users []User
	if err := conn.SelectContext(ctx, &users, conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("user repository get by ids: %w", err)
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

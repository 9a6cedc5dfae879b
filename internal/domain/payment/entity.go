package payment

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents payment status
type Status string

const (
	StatusCompleted Status = "completed"
)

// Method is how the buyer pays. No gateway is contacted; every method
// settles immediately.
type Method string

const (
	MethodCard   Method = "card"
	MethodPayPal Method = "paypal"
)

// IsValid checks if method is supported
func (m Method) IsValid() bool {
	return m == MethodCard || m == MethodPayPal
}

// Package is a fixed bundle of credits for sale.
type Package struct {
	ID         string
	Name       string
	Credits    int
	PriceCents int
	Currency   string
}

// Price renders the price as a decimal string.
func (p Package) Price() string {
	return formatCents(p.PriceCents)
}

func formatCents(cents int) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// Payment records one settled credit purchase and the ledger entry it
// produced.
type Payment struct {
	ID            uuid.UUID      `db:"id"`
	UserID        uuid.UUID      `db:"user_id"`
	PackageID     string         `db:"package_id"`
	Method        Method         `db:"method"`
	Credits       int            `db:"credits"`
	AmountCents   int            `db:"amount_cents"`
	Currency      string         `db:"currency"`
	Status        Status         `db:"status"`
	ReferenceID   sql.NullString `db:"reference_id"`
	TransactionID uuid.UUID      `db:"transaction_id"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Matches reports whether p was made for the same package and method.
func (p *Payment) Matches(userID uuid.UUID, pkg Package, method Method) bool {
	return p.UserID == userID && p.PackageID == pkg.ID && p.Method == method
}

func newPayment(userID uuid.UUID, pkg Package, method Method, reference string) *Payment {
	p := &Payment{
		ID:          uuid.New(),
		UserID:      userID,
		PackageID:   pkg.ID,
		Method:      method,
		Credits:     pkg.Credits,
		AmountCents: pkg.PriceCents,
		Currency:    pkg.Currency,
		Status:      StatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
	if reference != "" {
		p.ReferenceID = sql.NullString{String: reference, Valid: true}
	}
	return p
}

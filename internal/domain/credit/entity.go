package credit

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Type defines supported ledger entry types.
type Type string

const (
	TypePayment        Type = "payment"
	TypeCreditPurchase Type = "credit_purchase"
	TypeSignupBonus    Type = "signup_bonus"
)

// Status of a ledger entry. Entries are only written once the balance
// change has been applied, so every persisted entry is completed.
type Status string

const StatusCompleted Status = "completed"

// Transaction is an immutable ledger row. SenderID is null for credits
// issued by the system (signup, purchase).
type Transaction struct {
	ID                uuid.UUID      `db:"id"`
	SenderID          uuid.NullUUID  `db:"sender_id"`
	ReceiverID        uuid.UUID      `db:"receiver_id"`
	Amount            int            `db:"amount"`
	Type              Type           `db:"type"`
	Status            Status         `db:"status"`
	RelatedEntityType sql.NullString `db:"related_entity_type"`
	RelatedEntityID   uuid.NullUUID  `db:"related_entity_id"`
	ReferenceID       sql.NullString `db:"reference_id"`
	Description       string         `db:"description"`
	CreatedAt         time.Time      `db:"created_at"`
}

// SignedAmountFor returns the effect of t on userID's balance.
func (t *Transaction) SignedAmountFor(userID uuid.UUID) int {
	delta := 0
	if t.ReceiverID == userID {
		delta += t.Amount
	}
	if t.SenderID.Valid && t.SenderID.UUID == userID {
		delta -= t.Amount
	}
	return delta
}

// Meta is optional context attached to a ledger entry.
type Meta struct {
	RelatedEntityType string
	RelatedEntityID   uuid.UUID
	ReferenceID       string
	Description       string
}

// Reconciliation compares a stored balance with the ledger.
type Reconciliation struct {
	UserID    uuid.UUID `json:"user_id"`
	Balance   int       `json:"balance"`
	LedgerSum int       `json:"ledger_sum"`
	Balanced  bool      `json:"balanced"`
}

func newTransaction(sender uuid.NullUUID, receiver uuid.UUID, amount int, typ Type, meta Meta) *Transaction {
	t := &Transaction{
		ID:          uuid.New(),
		SenderID:    sender,
		ReceiverID:  receiver,
		Amount:      amount,
		Type:        typ,
		Status:      StatusCompleted,
		Description: meta.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if meta.RelatedEntityType != "" {
		t.RelatedEntityType = sql.NullString{String: meta.RelatedEntityType, Valid: true}
	}
	if meta.RelatedEntityID != uuid.Nil {
		t.RelatedEntityID = uuid.NullUUID{UUID: meta.RelatedEntityID, Valid: true}
	}
	if meta.ReferenceID != "" {
		t.ReferenceID = sql.NullString{String: meta.ReferenceID, Valid: true}
	}
	return t
}

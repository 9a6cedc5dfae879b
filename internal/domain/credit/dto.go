package credit

import (
	"time"

	"github.com/google/uuid"
)

// TransactionResponse is the public view of a ledger entry.
type TransactionResponse struct {
	ID                uuid.UUID  `json:"id"`
	SenderID          *uuid.UUID `json:"sender_id"`
	ReceiverID        uuid.UUID  `json:"receiver_id"`
	Amount            int        `json:"amount"`
	Direction         string     `json:"direction"`
	Type              Type       `json:"type"`
	Status            Status     `json:"status"`
	RelatedEntityType string     `json:"related_entity_type,omitempty"`
	RelatedEntityID   *uuid.UUID `json:"related_entity_id,omitempty"`
	Description       string     `json:"description,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// TransactionResponseFromEntity renders t from viewer's side.
func TransactionResponseFromEntity(t *Transaction, viewer uuid.UUID) *TransactionResponse {
	resp := &TransactionResponse{
		ID:          t.ID,
		ReceiverID:  t.ReceiverID,
		Amount:      t.Amount,
		Direction:   "in",
		Type:        t.Type,
		Status:      t.Status,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
	if t.SenderID.Valid {
		id := t.SenderID.UUID
		resp.SenderID = &id
		if id == viewer {
			resp.Direction = "out"
		}
	}
	if t.RelatedEntityType.Valid {
		resp.RelatedEntityType = t.RelatedEntityType.String
	}
	if t.RelatedEntityID.Valid {
		id := t.RelatedEntityID.UUID
		resp.RelatedEntityID = &id
	}
	return resp
}

// BalanceResponse is returned by GET /credits/balance.
type BalanceResponse struct {
	Credits int `json:"credits"`
}

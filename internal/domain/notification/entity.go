package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type represents notification type
type Type string

const (
	TypeOfferReceived    Type = "offer_received"
	TypeOfferAccepted    Type = "offer_accepted"
	TypeOfferRejected    Type = "offer_rejected"
	TypeNewMessage       Type = "new_message"
	TypeJobCompleted     Type = "job_completed"
	TypePaymentReceived  Type = "payment_received"
	TypeCreditsPurchased Type = "credits_purchased"
)

// Notification represents an in-app notification
type Notification struct {
	ID     uuid.UUID `db:"id" json:"id"`
	UserID uuid.UUID `db:"user_id" json:"user_id"`

	Type  Type   `db:"type" json:"type"`
	Title string `db:"title" json:"title"`
	Body  string `db:"body" json:"body"`

	Data json.RawMessage `db:"data" json:"data"`

	IsRead bool         `db:"is_read" json:"is_read"`
	ReadAt sql.NullTime `db:"read_at" json:"read_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Event is a request to notify one user.
type Event struct {
	UserID uuid.UUID
	Type   Type
	Title  string
	Body   string
	Data   map[string]any
}

// Notifier accepts events for delivery. Implementations must not block
// the caller on persistence or transport.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e Event)

func (f NotifierFunc) Notify(ctx context.Context, e Event) { f(ctx, e) }

// Discard drops every event.
var Discard Notifier = NotifierFunc(func(context.Context, Event) {})

func newNotification(e Event) *Notification {
	data := json.RawMessage(`{}`)
	if len(e.Data) > 0 {
		if raw, err := json.Marshal(e.Data); err == nil {
			data = raw
		}
	}
	return &Notification{
		ID:        uuid.New(),
		UserID:    e.UserID,
		Type:      e.Type,
		Title:     e.Title,
		Body:      e.Body,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

package chat

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Stage is the conversation lifecycle state. It only moves forward.
type Stage string

const (
	StageNegotiation Stage = "negotiation"
	StageWork        Stage = "work"
	StageCompleted   Stage = "completed"
	StageArchived    Stage = "archived"
)

var stageTransitions = map[Stage][]Stage{
	StageNegotiation: {StageWork, StageArchived},
	StageWork:        {StageCompleted},
}

// CanTransitionTo reports whether s may move to next.
func (s Stage) CanTransitionTo(next Stage) bool {
	for _, allowed := range stageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsReadOnly reports whether no one may write in this stage.
func (s Stage) IsReadOnly() bool {
	return s == StageCompleted || s == StageArchived
}

// StatusLabel is the client-facing label for the stage.
func (s Stage) StatusLabel() string {
	switch s {
	case StageNegotiation:
		return "pending"
	case StageWork:
		return "active"
	case StageCompleted:
		return "completed"
	case StageArchived:
		return "rejected"
	}
	return string(s)
}

// MessageType represents message type
type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeSystem      MessageType = "system"
	MessageTypeFile        MessageType = "file"
	MessageTypeImage       MessageType = "image"
	MessageTypeOfferUpdate MessageType = "offer_update"
	MessageTypeJobStatus   MessageType = "job_status"
	MessageTypePayment     MessageType = "payment"
	MessageTypeReview      MessageType = "review"
)

// IsUserType reports whether users may send messages of this type.
// The rest are written by the system on lifecycle events.
func (t MessageType) IsUserType() bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeImage:
		return true
	}
	return false
}

// IsSystemType reports whether t is written by lifecycle events.
func (t MessageType) IsSystemType() bool {
	switch t {
	case MessageTypeSystem, MessageTypeOfferUpdate, MessageTypeJobStatus, MessageTypePayment, MessageTypeReview:
		return true
	}
	return false
}

// Intent tags what a message is for.
type Intent string

const (
	IntentQuestion      Intent = "question"
	IntentClarification Intent = "clarification"
	IntentOffer         Intent = "offer"
	IntentCasual        Intent = "casual"
	IntentUpdate        Intent = "update"
	IntentDeliverable   Intent = "deliverable"
	IntentGeneral       Intent = "general"
)

var allIntents = []Intent{
	IntentQuestion, IntentClarification, IntentOffer, IntentCasual,
	IntentUpdate, IntentDeliverable, IntentGeneral,
}

// IsValid checks the value against the known intents.
func (i Intent) IsValid() bool {
	for _, known := range allIntents {
		if i == known {
			return true
		}
	}
	return false
}

// Conversation is a two-party thread, optionally bound to a listing offer.
type Conversation struct {
	ID                 uuid.UUID     `db:"id"`
	ParticipantOneID   uuid.UUID     `db:"participant_one_id"`
	ParticipantTwoID   uuid.UUID     `db:"participant_two_id"`
	ListingID          uuid.NullUUID `db:"listing_id"`
	OfferID            uuid.NullUUID `db:"offer_id"`
	OwnerID            uuid.NullUUID `db:"owner_id"`
	Stage              Stage         `db:"stage"`
	LastMessageID      uuid.NullUUID `db:"last_message_id"`
	LastMessagePreview string        `db:"last_message_preview"`
	LastActivityAt     time.Time     `db:"last_activity_at"`
	CreatedAt          time.Time     `db:"created_at"`
}

// HasParticipant checks if user is in this conversation
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.ParticipantOneID == userID || c.ParticipantTwoID == userID
}

// OtherParticipant returns the other user in the conversation
func (c *Conversation) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if c.ParticipantOneID == userID {
		return c.ParticipantTwoID
	}
	return c.ParticipantOneID
}

// RoleOf returns RoleOwner for the listing poster.
func (c *Conversation) RoleOf(userID uuid.UUID) Role {
	if c.OwnerID.Valid && c.OwnerID.UUID == userID {
		return RoleOwner
	}
	return RoleParticipant
}

// IsDirect reports whether the conversation has no listing behind it.
func (c *Conversation) IsDirect() bool {
	return !c.ListingID.Valid
}

// Participant is the per-user state of a conversation.
type Participant struct {
	ConversationID uuid.UUID    `db:"conversation_id"`
	UserID         uuid.UUID    `db:"user_id"`
	UnreadCount    int          `db:"unread_count"`
	SentCount      int          `db:"sent_count"`
	LastReadAt     sql.NullTime `db:"last_read_at"`
}

// ConversationSummary is a conversation with the viewer's counters.
type ConversationSummary struct {
	Conversation
	UnreadCount int `db:"unread_count"`
	SentCount   int `db:"sent_count"`
}

// Message represents a chat message
type Message struct {
	ID             uuid.UUID     `db:"id"`
	ConversationID uuid.UUID     `db:"conversation_id"`
	SenderID       uuid.NullUUID `db:"sender_id"`
	Type           MessageType   `db:"type"`
	Intent         Intent        `db:"intent"`
	Content        string        `db:"content"`
	ReplyToID      uuid.NullUUID `db:"reply_to_id"`
	Edited         bool          `db:"edited"`
	CreatedAt      time.Time     `db:"created_at"`
	DeletedAt      sql.NullTime  `db:"deleted_at"`

	ReadBy    []uuid.UUID `db:"-"`
	Reactions []*Reaction `db:"-"`
}

// IsFrom reports whether userID sent the message.
func (m *Message) IsFrom(userID uuid.UUID) bool {
	return m.SenderID.Valid && m.SenderID.UUID == userID
}

// IsDeleted returns true if message was soft deleted
func (m *Message) IsDeleted() bool {
	return m.DeletedAt.Valid
}

// MessageEdit is one entry of the append-only edit log.
type MessageEdit struct {
	ID              uuid.UUID `db:"id"`
	MessageID       uuid.UUID `db:"message_id"`
	EditorID        uuid.UUID `db:"editor_id"`
	PreviousContent string    `db:"previous_content"`
	NewContent      string    `db:"new_content"`
	EditedAt        time.Time `db:"edited_at"`
}

// Reaction is one user's emoji on a message.
type Reaction struct {
	MessageID uuid.UUID `db:"message_id"`
	UserID    uuid.UUID `db:"user_id"`
	Emoji     string    `db:"emoji"`
	CreatedAt time.Time `db:"created_at"`
}

func newConversation(a, b uuid.UUID, stage Stage) *Conversation {
	if b.String() < a.String() {
		a, b = b, a
	}
	now := time.Now().UTC()
	return &Conversation{
		ID:               uuid.New(),
		ParticipantOneID: a,
		ParticipantTwoID: b,
		Stage:            stage,
		LastActivityAt:   now,
		CreatedAt:        now,
	}
}

func newMessage(conversationID uuid.UUID, sender uuid.NullUUID, typ MessageType, intent Intent, content string) *Message {
	return &Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       sender,
		Type:           typ,
		Intent:         intent,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

package chat

import (
	"time"

	"github.com/google/uuid"
)

// StartConversationRequest for POST /chat/conversations
type StartConversationRequest struct {
	RecipientID uuid.UUID  `json:"recipient_id" validate:"required"`
	ListingID   *uuid.UUID `json:"listing_id,omitempty"`
}

// SendMessageRequest for POST /chat/message. Either ConversationID or
// RecipientID (optionally with ListingID) addresses the conversation.
type SendMessageRequest struct {
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	RecipientID    *uuid.UUID `json:"recipient_id,omitempty"`
	ListingID      *uuid.UUID `json:"listing_id,omitempty"`
	Content        string     `json:"content" validate:"notblank,max=5000"`
	Type           string     `json:"type,omitempty" validate:"omitempty,message_type"`
	Intent         string     `json:"intent,omitempty" validate:"intent"`
	ReplyToID      *uuid.UUID `json:"reply_to_id,omitempty"`
}

// EditMessageRequest for PATCH /chat/messages/{id}
type EditMessageRequest struct {
	Content string `json:"content" validate:"notblank,max=5000"`
}

// ReactionRequest for POST /chat/messages/{id}/reactions
type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"notblank,max=32"`
}

// ParticipantInfo for conversation response
type ParticipantInfo struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	IsOnline    bool      `json:"is_online"`
}

// ConversationResponse represents conversation in API
type ConversationResponse struct {
	ID                 uuid.UUID        `json:"id"`
	ListingID          *uuid.UUID       `json:"listing_id,omitempty"`
	OfferID            *uuid.UUID       `json:"offer_id,omitempty"`
	Stage              string           `json:"stage"`
	StatusLabel        string           `json:"status_label"`
	Role               string           `json:"role"`
	OtherParticipant   *ParticipantInfo `json:"other_participant,omitempty"`
	LastMessagePreview string           `json:"last_message_preview,omitempty"`
	LastActivityAt     string           `json:"last_activity_at"`
	UnreadCount        int              `json:"unread_count"`
	Permissions        *Permissions     `json:"permissions,omitempty"`
	CreatedAt          string           `json:"created_at"`
}

// ConversationResponseFromEntity converts entity to response for viewer
func ConversationResponseFromEntity(c *Conversation, viewer uuid.UUID, unread int) *ConversationResponse {
	resp := &ConversationResponse{
		ID:                 c.ID,
		Stage:              string(c.Stage),
		StatusLabel:        c.Stage.StatusLabel(),
		Role:               string(c.RoleOf(viewer)),
		LastMessagePreview: c.LastMessagePreview,
		LastActivityAt:     c.LastActivityAt.Format(time.RFC3339),
		UnreadCount:        unread,
		CreatedAt:          c.CreatedAt.Format(time.RFC3339),
	}
	if c.ListingID.Valid {
		resp.ListingID = &c.ListingID.UUID
	}
	if c.OfferID.Valid {
		resp.OfferID = &c.OfferID.UUID
	}
	return resp
}

// ReactionResponse aggregates one emoji on a message
type ReactionResponse struct {
	Emoji   string      `json:"emoji"`
	Count   int         `json:"count"`
	UserIDs []uuid.UUID `json:"user_ids"`
	Mine    bool        `json:"mine"`
}

// MessageResponse represents message in API
type MessageResponse struct {
	ID             uuid.UUID           `json:"id"`
	ConversationID uuid.UUID           `json:"conversation_id"`
	SenderID       *uuid.UUID          `json:"sender_id,omitempty"`
	Type           string              `json:"type"`
	Intent         string              `json:"intent,omitempty"`
	Content        string              `json:"content"`
	ReplyToID      *uuid.UUID          `json:"reply_to_id,omitempty"`
	IsSystem       bool                `json:"is_system"`
	IsMine         bool                `json:"is_mine"`
	IsRead         bool                `json:"is_read"`
	Edited         bool                `json:"edited"`
	Deleted        bool                `json:"deleted"`
	ReadBy         []uuid.UUID         `json:"read_by,omitempty"`
	Reactions      []*ReactionResponse `json:"reactions,omitempty"`
	CreatedAt      string              `json:"created_at"`
}

// MessageResponseFromEntity converts entity to response. Deleted messages
// keep their place in the thread with the content blanked.
func MessageResponseFromEntity(m *Message, currentUserID uuid.UUID) *MessageResponse {
	resp := &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Type:           string(m.Type),
		Intent:         string(m.Intent),
		Content:        m.Content,
		IsSystem:       !m.SenderID.Valid,
		IsMine:         m.IsFrom(currentUserID),
		Edited:         m.Edited,
		Deleted:        m.IsDeleted(),
		ReadBy:         m.ReadBy,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
	if m.SenderID.Valid {
		resp.SenderID = &m.SenderID.UUID
	}
	if m.ReplyToID.Valid {
		resp.ReplyToID = &m.ReplyToID.UUID
	}
	if resp.Deleted {
		resp.Content = ""
	}

	for _, id := range m.ReadBy {
		if id != currentUserID {
			resp.IsRead = true
			break
		}
	}

	byEmoji := map[string]*ReactionResponse{}
	for _, r := range m.Reactions {
		agg, ok := byEmoji[r.Emoji]
		if !ok {
			agg = &ReactionResponse{Emoji: r.Emoji}
			byEmoji[r.Emoji] = agg
			resp.Reactions = append(resp.Reactions, agg)
		}
		agg.Count++
		agg.UserIDs = append(agg.UserIDs, r.UserID)
		if r.UserID == currentUserID {
			agg.Mine = true
		}
	}

	return resp
}

// MessageEditResponse is one edit log entry
type MessageEditResponse struct {
	ID              uuid.UUID `json:"id"`
	EditorID        uuid.UUID `json:"editor_id"`
	PreviousContent string    `json:"previous_content"`
	NewContent      string    `json:"new_content"`
	EditedAt        string    `json:"edited_at"`
}

// MessageEditResponseFromEntity converts entity to response
func MessageEditResponseFromEntity(e *MessageEdit) *MessageEditResponse {
	return &MessageEditResponse{
		ID:              e.ID,
		EditorID:        e.EditorID,
		PreviousContent: e.PreviousContent,
		NewContent:      e.NewContent,
		EditedAt:        e.EditedAt.Format(time.RFC3339),
	}
}

// MarkReadResponse reports the receipts written by a mark-read call
type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}

// SendMessageResponse is the created message plus what the sender has left
type SendMessageResponse struct {
	Message     *MessageResponse `json:"message"`
	Permissions Permissions      `json:"permissions"`
}

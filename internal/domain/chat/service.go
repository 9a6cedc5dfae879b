package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditswap/creditswap-api/internal/domain/notification"
	"github.com/creditswap/creditswap-api/internal/domain/user"
	"github.com/creditswap/creditswap-api/internal/pkg/database"
)

// UserReader is the subset of the user store chat needs.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*user.User, error)
}

// OfferRef is the offer state a listing conversation is derived from.
type OfferRef struct {
	ID               uuid.UUID
	ListingID        uuid.UUID
	WorkerID         uuid.UUID
	PosterID         uuid.UUID
	Status           string
	ListingCompleted bool
}

// OfferLookup finds the offer linking two users on a listing. Inside a
// transaction the offer row is locked.
type OfferLookup interface {
	FindBetween(ctx context.Context, listingID, a, b uuid.UUID) (*OfferRef, error)
}

// Service handles chat business logic
type Service struct {
	repo     Repository
	users    UserReader
	offers   OfferLookup
	tx       database.Transactor
	hub      *Hub
	notifier notification.Notifier
	policy   Policy
}

// NewService creates chat service. hub may be nil.
func NewService(repo Repository, users UserReader, tx database.Transactor, hub *Hub, notifier notification.Notifier, policy Policy) *Service {
	if notifier == nil {
		notifier = notification.Discard
	}
	return &Service{
		repo:     repo,
		users:    users,
		tx:       tx,
		hub:      hub,
		notifier: notifier,
		policy:   policy,
	}
}

// SetOfferLookup wires the offer store. Listing conversations cannot be
// started until it is set.
func (s *Service) SetOfferLookup(offers OfferLookup) {
	s.offers = offers
}

// Policy returns the messaging policy in effect.
func (s *Service) Policy() Policy {
	return s.policy
}

// StartConversation returns the conversation between actor and recipient,
// creating it when missing. With a listing, an offer between the two
// users must exist and the stage is derived from it.
func (s *Service) StartConversation(ctx context.Context, actor uuid.UUID, req *StartConversationRequest) (*Conversation, error) {
	if actor == req.RecipientID {
		return nil, ErrCannotChatSelf
	}
	recipient, err := s.users.GetByID(ctx, req.RecipientID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, ErrUserNotFound
	}

	var conv *Conversation
	created := false
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if req.ListingID == nil {
			conv, created, err = s.getOrCreateDirect(ctx, actor, req.RecipientID)
		} else {
			conv, created, err = s.getOrCreateForListing(ctx, actor, req.RecipientID, *req.ListingID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.hub.SubscribeIfConnected(conv.ID, conv.ParticipantOneID, conv.ParticipantTwoID)
		log.Info().
			Str("conversation_id", conv.ID.String()).
			Str("stage", string(conv.Stage)).
			Msg("Conversation started")
	}
	return conv, nil
}

func (s *Service) getOrCreateDirect(ctx context.Context, a, b uuid.UUID) (*Conversation, bool, error) {
	existing, err := s.repo.GetDirect(ctx, a, b)
	if err != nil || existing != nil {
		return existing, false, err
	}

	conv := newConversation(a, b, StageWork)
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (s *Service) getOrCreateForListing(ctx context.Context, actor, recipient, listingID uuid.UUID) (*Conversation, bool, error) {
	if s.offers == nil {
		return nil, false, ErrOfferRequired
	}
	ref, err := s.offers.FindBetween(ctx, listingID, actor, recipient)
	if err != nil {
		return nil, false, err
	}
	if ref == nil {
		return nil, false, ErrOfferRequired
	}

	existing, err := s.repo.GetByOffer(ctx, ref.ID, false)
	if err != nil || existing != nil {
		return existing, false, err
	}

	conv := newOfferConversation(ref, stageForOffer(ref))
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// stageForOffer maps offer and listing state onto a conversation stage.
func stageForOffer(ref *OfferRef) Stage {
	switch ref.Status {
	case "pending":
		return StageNegotiation
	case "accepted":
		if ref.ListingCompleted {
			return StageCompleted
		}
		return StageWork
	default:
		return StageArchived
	}
}

func newOfferConversation(ref *OfferRef, stage Stage) *Conversation {
	conv := newConversation(ref.WorkerID, ref.PosterID, stage)
	conv.ListingID = uuid.NullUUID{UUID: ref.ListingID, Valid: true}
	conv.OfferID = uuid.NullUUID{UUID: ref.ID, Valid: true}
	conv.OwnerID = uuid.NullUUID{UUID: ref.PosterID, Valid: true}
	return conv
}

// SendMessage validates the message against the conversation policy and
// persists it. The cap check and counter increment are one conditional
// update on the locked conversation.
func (s *Service) SendMessage(ctx context.Context, actor uuid.UUID, req *SendMessageRequest) (*Message, Permissions, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, Permissions{}, ErrEmptyContent
	}
	msgType := MessageType(req.Type)
	if msgType == "" {
		msgType = MessageTypeText
	}
	if !msgType.IsUserType() {
		return nil, Permissions{}, ErrInvalidType
	}
	intent := Intent(req.Intent)
	if intent != "" && !intent.IsValid() {
		return nil, Permissions{}, ErrInvalidIntent
	}

	conversationID, err := s.resolveConversation(ctx, actor, req)
	if err != nil {
		return nil, Permissions{}, err
	}

	var (
		msg   *Message
		conv  *Conversation
		perms Permissions
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		conv, err = s.repo.GetConversationForUpdate(ctx, conversationID)
		if err != nil {
			return err
		}
		if conv == nil {
			return ErrConversationNotFound
		}
		if !conv.HasParticipant(actor) {
			return ErrNotParticipant
		}

		p, err := s.repo.GetParticipant(ctx, conv.ID, actor)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrNotParticipant
		}

		perms = s.policy.Evaluate(conv.Stage, conv.RoleOf(actor), p.SentCount)
		if !perms.CanWrite {
			return ErrConversationReadOnly.WithDetails(map[string]any{"stage": conv.Stage})
		}
		if intent == "" {
			intent = DefaultIntent(conv.Stage)
		}
		if !perms.Allows(intent) {
			return ErrIntentNotAllowed.WithDetails(map[string]any{
				"stage":           conv.Stage,
				"allowed_intents": perms.AllowedIntents,
			})
		}

		ok, err := s.repo.IncrementSentIfBelow(ctx, conv.ID, actor, perms.MessageCap)
		if err != nil {
			return err
		}
		if !ok {
			return ErrMessageCapReached.WithDetails(map[string]any{
				"limit":     perms.MessageCap,
				"remaining": 0,
			})
		}
		if perms.Capped() {
			perms.Remaining--
		}

		msg = newMessage(conv.ID, uuid.NullUUID{UUID: actor, Valid: true}, msgType, intent, content)
		if req.ReplyToID != nil {
			target, err := s.repo.GetMessage(ctx, *req.ReplyToID)
			if err != nil {
				return err
			}
			if target == nil || target.ConversationID != conv.ID {
				return ErrInvalidReply
			}
			msg.ReplyToID = uuid.NullUUID{UUID: target.ID, Valid: true}
		}

		if err := s.repo.CreateMessage(ctx, msg); err != nil {
			return err
		}
		if err := s.repo.TouchLastMessage(ctx, conv.ID, msg); err != nil {
			return err
		}
		return s.repo.IncrementUnread(ctx, conv.ID, actor)
	})
	if err != nil {
		return nil, Permissions{}, err
	}

	recipient := conv.OtherParticipant(actor)
	s.hub.BroadcastToConversation(conv.ID, &WSEvent{
		Type:           EventNewMessage,
		ConversationID: conv.ID,
		SenderID:       actor,
		MessageID:      msg.ID,
		Message:        MessageResponseFromEntity(msg, uuid.Nil),
	})
	s.notifier.Notify(ctx, notification.Event{
		UserID: recipient,
		Type:   notification.TypeNewMessage,
		Title:  "New message",
		Body:   msg.Content,
		Data: map[string]any{
			"conversation_id": conv.ID.String(),
			"message_id":      msg.ID.String(),
			"sender_id":       actor.String(),
		},
	})

	return msg, perms, nil
}

func (s *Service) resolveConversation(ctx context.Context, actor uuid.UUID, req *SendMessageRequest) (uuid.UUID, error) {
	if req.ConversationID != nil {
		return *req.ConversationID, nil
	}
	if req.RecipientID == nil {
		return uuid.Nil, ErrMissingRecipient
	}
	conv, err := s.StartConversation(ctx, actor, &StartConversationRequest{
		RecipientID: *req.RecipientID,
		ListingID:   req.ListingID,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return conv.ID, nil
}

// requireParticipant loads the conversation and checks access.
func (s *Service) requireParticipant(ctx context.Context, actor, conversationID uuid.UUID) (*Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(actor) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// GetMessages returns a page of messages, newest first, and marks the
// conversation read for actor.
func (s *Service) GetMessages(ctx context.Context, actor, conversationID uuid.UUID, limit, offset int) ([]*Message, error) {
	if _, err := s.requireParticipant(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	messages, err := s.repo.ListMessages(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}

	if _, err := s.MarkRead(ctx, actor, conversationID); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("Implicit mark read failed")
	}
	return messages, nil
}

// MarkRead clears actor's unread counter and writes read receipts.
// Repeated calls are no-ops. Allowed in every stage.
func (s *Service) MarkRead(ctx context.Context, actor, conversationID uuid.UUID) (int64, error) {
	if _, err := s.requireParticipant(ctx, actor, conversationID); err != nil {
		return 0, err
	}

	var marked int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		marked, err = s.repo.MarkRead(ctx, conversationID, actor)
		return err
	})
	if err != nil {
		return 0, err
	}

	if marked > 0 {
		s.hub.BroadcastToConversation(conversationID, &WSEvent{
			Type:           EventRead,
			ConversationID: conversationID,
			SenderID:       actor,
			Data:           map[string]any{"marked": marked},
		})
	}
	return marked, nil
}

// loadOwnMessage locks the message's conversation and checks that actor
// sent it and the conversation is writable.
func (s *Service) loadOwnMessage(ctx context.Context, actor, messageID uuid.UUID) (*Message, *Conversation, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	if msg == nil || msg.IsDeleted() {
		return nil, nil, ErrMessageNotFound
	}
	conv, err := s.repo.GetConversationForUpdate(ctx, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(actor) {
		return nil, nil, ErrNotParticipant
	}
	if !msg.IsFrom(actor) {
		return nil, nil, ErrNotMessageSender
	}
	if conv.Stage.IsReadOnly() {
		return nil, nil, ErrConversationReadOnly.WithDetails(map[string]any{"stage": conv.Stage})
	}
	return msg, conv, nil
}

// EditMessage replaces the content of a text message and appends the
// change to the edit log.
func (s *Service) EditMessage(ctx context.Context, actor, messageID uuid.UUID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	var msg *Message
	changed := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		msg, _, err = s.loadOwnMessage(ctx, actor, messageID)
		if err != nil {
			return err
		}
		if msg.Type != MessageTypeText {
			return ErrMessageNotEditable
		}
		if msg.Content == content {
			return nil
		}

		edit := &MessageEdit{
			ID:              uuid.New(),
			MessageID:       msg.ID,
			EditorID:        actor,
			PreviousContent: msg.Content,
			NewContent:      content,
			EditedAt:        time.Now().UTC(),
		}
		if err := s.repo.AppendEdit(ctx, edit); err != nil {
			return err
		}
		msg.Content = content
		msg.Edited = true
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.hub.BroadcastToConversation(msg.ConversationID, &WSEvent{
			Type:           EventEditMessage,
			ConversationID: msg.ConversationID,
			SenderID:       actor,
			MessageID:      msg.ID,
			Message:        MessageResponseFromEntity(msg, uuid.Nil),
		})
	}
	return msg, nil
}

// ListEdits returns the edit log of a message, oldest first.
func (s *Service) ListEdits(ctx context.Context, actor, messageID uuid.UUID) ([]*MessageEdit, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if _, err := s.requireParticipant(ctx, actor, msg.ConversationID); err != nil {
		return nil, err
	}
	return s.repo.ListEdits(ctx, messageID)
}

// DeleteMessage soft deletes a message sent by actor.
func (s *Service) DeleteMessage(ctx context.Context, actor, messageID uuid.UUID) error {
	var msg *Message
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		msg, _, err = s.loadOwnMessage(ctx, actor, messageID)
		if err != nil {
			return err
		}
		return s.repo.SoftDeleteMessage(ctx, msg.ID)
	})
	if err != nil {
		return err
	}

	s.hub.BroadcastToConversation(msg.ConversationID, &WSEvent{
		Type:           EventDeleteMessage,
		ConversationID: msg.ConversationID,
		SenderID:       actor,
		MessageID:      msg.ID,
	})
	return nil
}

// ToggleReaction adds or removes actor's emoji on a message. Reports
// whether the reaction is present afterwards.
func (s *Service) ToggleReaction(ctx context.Context, actor, messageID uuid.UUID, emoji string) (bool, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return false, ErrInvalidEmoji
	}

	var (
		msg   *Message
		added bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		msg, err = s.repo.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		if msg == nil || msg.IsDeleted() {
			return ErrMessageNotFound
		}
		conv, err := s.repo.GetConversationForUpdate(ctx, msg.ConversationID)
		if err != nil {
			return err
		}
		if conv == nil {
			return ErrConversationNotFound
		}
		if !conv.HasParticipant(actor) {
			return ErrNotParticipant
		}
		if conv.Stage.IsReadOnly() {
			return ErrConversationReadOnly.WithDetails(map[string]any{"stage": conv.Stage})
		}
		added, err = s.repo.ToggleReaction(ctx, msg.ID, actor, emoji)
		return err
	})
	if err != nil {
		return false, err
	}

	s.hub.BroadcastToConversation(msg.ConversationID, &WSEvent{
		Type:           EventReaction,
		ConversationID: msg.ConversationID,
		SenderID:       actor,
		MessageID:      msg.ID,
		Data:           map[string]any{"emoji": emoji, "added": added},
	})
	return added, nil
}

// ConversationView is a conversation as seen by one participant.
type ConversationView struct {
	Conversation *Conversation
	Other        *user.User
	OtherOnline  bool
	UnreadCount  int
	Permissions  Permissions
}

// ListConversations returns actor's conversations, most recent first.
func (s *Service) ListConversations(ctx context.Context, actor uuid.UUID) ([]*ConversationView, error) {
	summaries, err := s.repo.ListByUser(ctx, actor)
	if err != nil {
		return nil, err
	}

	others := make([]uuid.UUID, len(summaries))
	for i, c := range summaries {
		others[i] = c.OtherParticipant(actor)
	}
	users, err := s.users.GetByIDs(ctx, others)
	if err != nil {
		return nil, err
	}
	online := map[uuid.UUID]bool{}
	if s.hub != nil {
		for _, id := range s.hub.GetOnlineUsers(others) {
			online[id] = true
		}
	}

	views := make([]*ConversationView, len(summaries))
	for i, c := range summaries {
		conv := c.Conversation
		views[i] = &ConversationView{
			Conversation: &conv,
			Other:        users[others[i]],
			OtherOnline:  online[others[i]],
			UnreadCount:  c.UnreadCount,
			Permissions:  s.policy.Evaluate(c.Stage, c.RoleOf(actor), c.SentCount),
		}
	}
	return views, nil
}

// GetConversation returns one conversation with actor's permissions.
func (s *Service) GetConversation(ctx context.Context, actor, conversationID uuid.UUID) (*ConversationView, error) {
	conv, err := s.requireParticipant(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetParticipant(ctx, conv.ID, actor)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotParticipant
	}

	otherID := conv.OtherParticipant(actor)
	other, err := s.users.GetByID(ctx, otherID)
	if err != nil {
		return nil, err
	}

	view := &ConversationView{
		Conversation: conv,
		Other:        other,
		UnreadCount:  p.UnreadCount,
		Permissions:  s.policy.Evaluate(conv.Stage, conv.RoleOf(actor), p.SentCount),
	}
	if s.hub != nil {
		view.OtherOnline = s.hub.IsOnline(otherID)
	}
	return view, nil
}

// UnreadTotal returns actor's unread messages across all conversations.
func (s *Service) UnreadTotal(ctx context.Context, actor uuid.UUID) (int, error) {
	return s.repo.CountUnreadByUser(ctx, actor)
}

// CanAccess reports ErrNotParticipant unless actor is in the conversation.
func (s *Service) CanAccess(ctx context.Context, actor, conversationID uuid.UUID) error {
	_, err := s.requireParticipant(ctx, actor, conversationID)
	return err
}

// ConversationIDs lists the conversations actor participates in.
func (s *Service) ConversationIDs(ctx context.Context, actor uuid.UUID) ([]uuid.UUID, error) {
	summaries, err := s.repo.ListByUser(ctx, actor)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(summaries))
	for i, c := range summaries {
		ids[i] = c.ID
	}
	return ids, nil
}

package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StageChange records a lifecycle write made inside a caller's unit of
// work so it can be announced after commit.
type StageChange struct {
	Conversation *Conversation
	From         Stage
	Message      *Message
	Created      bool
}

// OpenForOffer creates the negotiation conversation for a new offer and
// posts a system message. Joins the caller's transaction.
func (s *Service) OpenForOffer(ctx context.Context, ref *OfferRef, text string) (*StageChange, error) {
	var change *StageChange
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByOffer(ctx, ref.ID, true)
		if err != nil {
			return err
		}
		if existing != nil {
			change = &StageChange{Conversation: existing, From: existing.Stage}
			return nil
		}

		conv := newOfferConversation(ref, StageNegotiation)
		if err := s.repo.CreateConversation(ctx, conv); err != nil {
			return err
		}
		msg, err := s.postSystem(ctx, conv, MessageTypeOfferUpdate, text)
		if err != nil {
			return err
		}
		change = &StageChange{Conversation: conv, From: StageNegotiation, Message: msg, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// AdvanceForOffer moves the offer's conversation to stage and posts a
// system message of msgType. A missing conversation or a move to the
// current stage is a no-op and returns nil. Joins the caller's transaction.
func (s *Service) AdvanceForOffer(ctx context.Context, offerID uuid.UUID, to Stage, msgType MessageType, text string) (*StageChange, error) {
	if !msgType.IsSystemType() {
		return nil, ErrInvalidType
	}

	var change *StageChange
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		conv, err := s.repo.GetByOffer(ctx, offerID, true)
		if err != nil {
			return err
		}
		if conv == nil || conv.Stage == to {
			return nil
		}
		if !conv.Stage.CanTransitionTo(to) {
			return ErrInvalidTransition.WithDetails(map[string]any{"from": conv.Stage, "to": to})
		}

		ok, err := s.repo.UpdateStage(ctx, conv.ID, conv.Stage, to)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidTransition.WithDetails(map[string]any{"from": conv.Stage, "to": to})
		}

		from := conv.Stage
		conv.Stage = to
		msg, err := s.postSystem(ctx, conv, msgType, text)
		if err != nil {
			return err
		}
		change = &StageChange{Conversation: conv, From: from, Message: msg}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func (s *Service) postSystem(ctx context.Context, conv *Conversation, msgType MessageType, text string) (*Message, error) {
	msg := newMessage(conv.ID, uuid.NullUUID{}, msgType, "", text)
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.repo.TouchLastMessage(ctx, conv.ID, msg); err != nil {
		return nil, err
	}
	if err := s.repo.IncrementUnread(ctx, conv.ID, uuid.Nil); err != nil {
		return nil, err
	}
	conv.LastMessageID = uuid.NullUUID{UUID: msg.ID, Valid: true}
	conv.LastMessagePreview = previewOf(msg.Content)
	conv.LastActivityAt = msg.CreatedAt
	return msg, nil
}

// Announce pushes committed lifecycle changes to connected clients.
// Nil entries are skipped. Call only after the unit of work committed.
func (s *Service) Announce(changes ...*StageChange) {
	for _, c := range changes {
		if c == nil || c.Conversation == nil {
			continue
		}
		conv := c.Conversation
		if c.Created {
			s.hub.SubscribeIfConnected(conv.ID, conv.ParticipantOneID, conv.ParticipantTwoID)
		}
		if c.From != conv.Stage {
			s.hub.BroadcastToConversation(conv.ID, &WSEvent{
				Type:           EventStageChanged,
				ConversationID: conv.ID,
				Data: map[string]any{
					"from":         c.From,
					"to":           conv.Stage,
					"status_label": conv.Stage.StatusLabel(),
				},
			})
			log.Info().
				Str("conversation_id", conv.ID.String()).
				Str("from", string(c.From)).
				Str("to", string(conv.Stage)).
				Msg("Conversation stage changed")
		}
		if c.Message != nil {
			s.hub.BroadcastToConversation(conv.ID, &WSEvent{
				Type:           EventNewMessage,
				ConversationID: conv.ID,
				MessageID:      c.Message.ID,
				Message:        MessageResponseFromEntity(c.Message, uuid.Nil),
			})
		}
	}
}

package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RealtimePublisher pushes a stored notification to the recipient's sockets.
type RealtimePublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, n *NotificationResponse, unread int) error
}

// Service handles notification logic
type Service struct {
	repo     Repository
	realtime RealtimePublisher
}

// NewService creates notification service. realtime may be nil.
func NewService(repo Repository, realtime RealtimePublisher) *Service {
	return &Service{repo: repo, realtime: realtime}
}

// Deliver persists e and pushes it to the recipient's open sockets.
// Push failures are logged and do not fail delivery.
func (s *Service) Deliver(ctx context.Context, e Event) (*Notification, error) {
	n := newNotification(e)
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	if s.realtime != nil {
		unread, err := s.repo.CountUnreadByUser(ctx, n.UserID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", n.UserID.String()).Msg("Failed to count unread notifications")
		}
		if err := s.realtime.Publish(ctx, n.UserID, NotificationResponseFromEntity(n), unread); err != nil {
			log.Debug().Err(err).Str("user_id", n.UserID.String()).Msg("Realtime notification not delivered")
		}
	}
	return n, nil
}

// List returns a page of notifications for user
func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit, offset)
}

// GetUnreadCount returns unread count
func (s *Service) GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnreadByUser(ctx, userID)
}

// MarkAsRead marks a single notification owned by userID as read.
func (s *Service) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	ok, err := s.repo.MarkAsRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllAsRead marks all notifications as read
func (s *Service) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllAsRead(ctx, userID)
}

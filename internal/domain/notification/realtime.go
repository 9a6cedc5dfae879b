package notification

import (
	"context"

	"github.com/google/uuid"
)

// FrameNotificationNew is the socket frame type for a fresh notification.
const FrameNotificationNew = "notification:new"

// Frame is pushed to every open socket of the recipient.
type Frame struct {
	Type         string                `json:"type"`
	Notification *NotificationResponse `json:"notification"`
	UnreadCount  int                   `json:"unread_count"`
}

// UserSender reaches all sockets of one user. *chat.Hub satisfies it.
type UserSender interface {
	SendToUser(userID uuid.UUID, frame any) error
}

// SocketPublisher pushes notification frames through a UserSender.
type SocketPublisher struct {
	sender UserSender
}

func NewSocketPublisher(sender UserSender) *SocketPublisher {
	return &SocketPublisher{sender: sender}
}

// Publish skips read notifications; the badge only counts new ones.
func (p *SocketPublisher) Publish(ctx context.Context, userID uuid.UUID, n *NotificationResponse, unread int) error {
	if p == nil || p.sender == nil || n == nil || n.IsRead {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.sender.SendToUser(userID, Frame{
		Type:         FrameNotificationNew,
		Notification: n,
		UnreadCount:  unread,
	})
}

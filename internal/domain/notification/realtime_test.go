package notification

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

type captureSender struct {
	userID uuid.UUID
	frames [][]byte
}

func (c *captureSender) SendToUser(userID uuid.UUID, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.userID = userID
	c.frames = append(c.frames, data)
	return nil
}

func TestSocketPublisherFrame(t *testing.T) {
	sender := &captureSender{}
	pub := NewSocketPublisher(sender)
	userID := uuid.New()
	n := &NotificationResponse{ID: uuid.New(), Type: string(TypeOfferAccepted), Title: "Hired"}

	if err := pub.Publish(context.Background(), userID, n, 3); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if sender.userID != userID || len(sender.frames) != 1 {
		t.Fatalf("sent %d frames to %s", len(sender.frames), sender.userID)
	}

	var got struct {
		Type         string `json:"type"`
		UnreadCount  int    `json:"unread_count"`
		Notification struct {
			ID    uuid.UUID `json:"id"`
			Title string    `json:"title"`
		} `json:"notification"`
	}
	if err := json.Unmarshal(sender.frames[0], &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != FrameNotificationNew || got.UnreadCount != 3 {
		t.Fatalf("frame = %s", sender.frames[0])
	}
	if got.Notification.ID != n.ID || got.Notification.Title != "Hired" {
		t.Fatalf("notification = %+v", got.Notification)
	}
}

func TestSocketPublisherSkips(t *testing.T) {
	sender := &captureSender{}
	pub := NewSocketPublisher(sender)

	if err := pub.Publish(context.Background(), uuid.New(), &NotificationResponse{IsRead: true}, 0); err != nil {
		t.Fatalf("publish read: %v", err)
	}
	if err := pub.Publish(context.Background(), uuid.New(), nil, 0); err != nil {
		t.Fatalf("publish nil: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, uuid.New(), &NotificationResponse{}, 1); err == nil {
		t.Fatal("cancelled context should fail the push")
	}
	if len(sender.frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(sender.frames))
	}

	var nilPub *SocketPublisher
	if err := nilPub.Publish(context.Background(), uuid.New(), &NotificationResponse{}, 1); err != nil {
		t.Fatalf("nil publisher: %v", err)
	}
}

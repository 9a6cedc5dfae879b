package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/creditswap/creditswap-api/internal/pkg/apperror"
)

type memRepo struct {
	mu    sync.Mutex
	items []*Notification
	err   error
}

func (m *memRepo) Create(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.items = append(m.items, n)
	return nil
}

func (m *memRepo) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Notification
	for i := len(m.items) - 1; i >= 0; i-- {
		n := m.items[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *memRepo) CountUnreadByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.items {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) MarkAsRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var updated int64
	for _, n := range m.items {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (m *memRepo) DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*Notification
	var deleted int64
	for _, n := range m.items {
		if n.IsRead && n.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.items = kept
	return deleted, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	unread []int
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, userID uuid.UUID, n *NotificationResponse, unreadCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unread = append(p.unread, unreadCount)
	return p.err
}

func TestDeliverPersistsAndPushes(t *testing.T) {
	repo := &memRepo{}
	pub := &recordingPublisher{}
	svc := NewService(repo, pub)
	userID := uuid.New()
	listingID := uuid.New()

	n, err := svc.Deliver(context.Background(), Event{
		UserID: userID,
		Type:   TypeOfferReceived,
		Title:  "New offer",
		Body:   "Someone applied to your listing",
		Data:   map[string]any{"listing_id": listingID.String()},
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if n.Type != TypeOfferReceived || n.IsRead {
		t.Fatalf("unexpected notification %+v", n)
	}

	var data map[string]string
	if err := json.Unmarshal(n.Data, &data); err != nil || data["listing_id"] != listingID.String() {
		t.Fatalf("unexpected data %s (%v)", n.Data, err)
	}
	if len(pub.unread) != 1 || pub.unread[0] != 1 {
		t.Fatalf("expected one push with unread=1, got %v", pub.unread)
	}
}

func TestDeliverIgnoresPushFailure(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, &recordingPublisher{err: errors.New("offline")})

	if _, err := svc.Deliver(context.Background(), Event{UserID: uuid.New(), Type: TypeNewMessage, Title: "Hi"}); err != nil {
		t.Fatalf("push failure must not fail delivery: %v", err)
	}
	if len(repo.items) != 1 {
		t.Fatalf("expected persisted notification")
	}
	if string(repo.items[0].Data) != "{}" {
		t.Fatalf("expected empty object data, got %s", repo.items[0].Data)
	}
}

func TestMarkAsReadScopesToOwner(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, nil)
	owner := uuid.New()

	n, _ := svc.Deliver(context.Background(), Event{UserID: owner, Type: TypeJobCompleted, Title: "Done"})

	err := svc.MarkAsRead(context.Background(), uuid.New(), n.ID)
	if !errors.Is(err, ErrNotificationNotFound) || apperror.KindOf(err) != apperror.KindNotFound {
		t.Fatalf("expected not found for foreign user, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.MarkAsRead(context.Background(), owner, n.ID); err != nil {
			t.Fatalf("mark read #%d: %v", i+1, err)
		}
	}
	if count, _ := svc.GetUnreadCount(context.Background(), owner); count != 0 {
		t.Fatalf("expected 0 unread, got %d", count)
	}
}

func TestListUnreadFilterAndMarkAll(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, nil)
	ctx := context.Background()
	userID := uuid.New()

	first, _ := svc.Deliver(ctx, Event{UserID: userID, Type: TypeOfferAccepted, Title: "a"})
	svc.Deliver(ctx, Event{UserID: userID, Type: TypeOfferRejected, Title: "b"})
	svc.Deliver(ctx, Event{UserID: uuid.New(), Type: TypeOfferRejected, Title: "other"})
	svc.MarkAsRead(ctx, userID, first.ID)

	items, total, err := svc.List(ctx, userID, true, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Title != "b" {
		t.Fatalf("unexpected unread page total=%d items=%v", total, items)
	}

	updated, err := svc.MarkAllAsRead(ctx, userID)
	if err != nil || updated != 1 {
		t.Fatalf("mark all: updated=%d err=%v", updated, err)
	}
	if updated, _ := svc.MarkAllAsRead(ctx, userID); updated != 0 {
		t.Fatalf("second mark all must be a no-op, got %d", updated)
	}
}

func TestCleanupDeletesOnlyOldRead(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	repo := &memRepo{items: []*Notification{
		{ID: uuid.New(), UserID: userID, IsRead: true, CreatedAt: now.AddDate(0, 0, -100)},
		{ID: uuid.New(), UserID: userID, IsRead: false, CreatedAt: now.AddDate(0, 0, -100)},
		{ID: uuid.New(), UserID: userID, IsRead: true, CreatedAt: now.AddDate(0, 0, -10)},
	}}

	job := NewCleanupJob(repo, 90)
	job.now = func() time.Time { return now }

	deleted, err := job.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 || len(repo.items) != 2 {
		t.Fatalf("expected one deletion, got %d (left %d)", deleted, len(repo.items))
	}
}

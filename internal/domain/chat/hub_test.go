package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHubBroadcastReachesOnlySubscribers(t *testing.T) {
	h := NewHub(nil)
	convID := uuid.New()
	subscribed := connect(h, uuid.New(), convID)
	idle := connect(h, uuid.New())

	h.BroadcastToConversation(convID, &WSEvent{Type: EventTyping, ConversationID: convID})

	if event := waitEvent(t, subscribed.Send); event.Type != EventTyping {
		t.Fatalf("event type = %s, want typing", event.Type)
	}
	select {
	case <-idle.Send:
		t.Fatal("unsubscribed connection should not receive conversation events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubSubscribeIfConnectedSkipsOfflineUsers(t *testing.T) {
	h := NewHub(nil)
	convID := uuid.New()
	online := uuid.New()
	offline := uuid.New()
	connect(h, online)

	h.SubscribeIfConnected(convID, online, offline)

	if !h.IsUserSubscribed(convID, online) {
		t.Fatal("connected user should be subscribed")
	}
	if h.IsUserSubscribed(convID, offline) {
		t.Fatal("offline user should not be subscribed")
	}

	h.UnsubscribeFromConversation(convID, online)
	if h.IsUserSubscribed(convID, online) {
		t.Fatal("user should be unsubscribed")
	}
}

func TestHubNilIsSafe(t *testing.T) {
	var h *Hub
	h.BroadcastToConversation(uuid.New(), &WSEvent{Type: EventTyping})
	h.SubscribeIfConnected(uuid.New(), uuid.New())
}

func TestHubUserFramesFromOtherInstances(t *testing.T) {
	h := NewHubWithInstanceID(nil, "instance-a")
	userID := uuid.New()
	conn := connect(h, userID)

	raw, _ := json.Marshal(map[string]string{"type": "notification:new"})
	own, _ := json.Marshal(userFrame{UserID: userID, Instance: "instance-a", Frame: raw})
	foreign, _ := json.Marshal(userFrame{UserID: userID, Instance: "instance-b", Frame: raw})

	h.handleUserFrame(string(own))
	select {
	case <-conn.Send:
		t.Fatal("frames published by this instance should be ignored")
	default:
	}

	h.handleUserFrame(string(foreign))
	select {
	case got := <-conn.Send:
		if string(got) != string(raw) {
			t.Fatalf("payload = %s, want %s", got, raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting user frame")
	}
}

func TestHubSendToUserDeliversLocally(t *testing.T) {
	h := NewHub(nil)
	userID := uuid.New()
	first := connect(h, userID)
	second := connect(h, userID)
	other := connect(h, uuid.New())

	if err := h.SendToUser(userID, map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, c := range []*Connection{first, second} {
		select {
		case got := <-c.Send:
			if string(got) != `{"type":"ping"}` {
				t.Fatalf("frame = %s", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("every socket of the user should get the frame")
		}
	}
	select {
	case <-other.Send:
		t.Fatal("frame leaked to another user")
	default:
	}
}

func TestHubAnnouncesPresenceToConversationPeers(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	convID := uuid.New()
	peer := connect(h, uuid.New(), convID)

	userID := uuid.New()
	first := &Connection{UserID: userID, Send: make(chan []byte, 4), Conversations: []uuid.UUID{convID}}
	h.Register(first)

	event := waitEvent(t, peer.Send)
	if event.Type != EventOnline || event.SenderID != userID || event.ConversationID != convID {
		t.Fatalf("event = %+v, want online for %s", event, userID)
	}
	if !h.IsUserSubscribed(convID, userID) {
		t.Fatal("register should subscribe the connection's conversations")
	}

	// A second tab neither announces nor takes the user offline.
	second := &Connection{UserID: userID, Send: make(chan []byte, 4)}
	h.Register(second)
	h.Unregister(second)
	waitFor(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.connections[userID]) == 1
	})
	select {
	case data := <-peer.Send:
		t.Fatalf("unexpected presence frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}

	h.Unregister(first)
	event = waitEvent(t, peer.Send)
	if event.Type != EventOffline || event.SenderID != userID {
		t.Fatalf("event = %+v, want offline for %s", event, userID)
	}
	if h.IsOnline(userID) {
		t.Fatal("user should be offline after the last socket closes")
	}
}

func TestHubRunRegistersAndUnregisters(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	userID := uuid.New()
	conn := &Connection{UserID: userID, Send: make(chan []byte, 1)}
	h.Register(conn)
	waitFor(t, func() bool { return h.IsOnline(userID) })

	convID := uuid.New()
	h.SubscribeToConversation(convID, userID)
	h.Unregister(conn)
	waitFor(t, func() bool { return !h.IsOnline(userID) })

	if h.IsUserSubscribed(convID, userID) {
		t.Fatal("subscriptions should be dropped with the last connection")
	}
	if _, open := <-conn.Send; open {
		t.Fatal("send channel should be closed")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// After shutdown Register must not block.
	h.Register(&Connection{UserID: userID, Send: make(chan []byte, 1)})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

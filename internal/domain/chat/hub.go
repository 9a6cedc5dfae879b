package chat

import (
	"context"
	"encoding/json"
	"expvar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// EventType for WebSocket messages
type EventType string

const (
	EventNewMessage    EventType = "new_message"
	EventTyping        EventType = "typing"
	EventRead          EventType = "read"
	EventOnline        EventType = "online"
	EventOffline       EventType = "offline"
	EventDeleteMessage EventType = "message_deleted"
	EventEditMessage   EventType = "message_edited"
	EventReaction      EventType = "reaction"
	EventStageChanged  EventType = "stage_changed"
)

const (
	conversationChannelPrefix = "chat:conversation:"
	userChannel               = "chat:user_frames"
	presenceKeyPrefix         = "chat:online:"

	// presenceTTL bounds how long a crashed instance keeps users online.
	presenceTTL = 2 * time.Minute
)

var (
	wsConnectionsGauge   = expvar.NewInt("websocket_connections")
	wsEventsSentTotal    = expvar.NewInt("websocket_events_sent_total")
	wsEventsDroppedTotal = expvar.NewInt("websocket_events_dropped_total")
)

// userFrame carries a frame addressed to one user between instances.
type userFrame struct {
	UserID   uuid.UUID       `json:"user_id"`
	Instance string          `json:"instance"`
	Frame    json.RawMessage `json:"frame"`
}

// WSEvent represents a WebSocket event
type WSEvent struct {
	Type           EventType        `json:"type"`
	ConversationID uuid.UUID        `json:"conversation_id,omitempty"`
	SenderID       uuid.UUID        `json:"sender_id,omitempty"`
	MessageID      uuid.UUID        `json:"message_id,omitempty"`
	Message        *MessageResponse `json:"message,omitempty"`
	Data           any              `json:"data,omitempty"`
}

// Connection is one socket of a user. Conversations are subscribed when
// the hub registers it.
type Connection struct {
	UserID        uuid.UUID
	Conn          *websocket.Conn
	Send          chan []byte
	Conversations []uuid.UUID
}

// Hub fans conversation events out to local sockets. With Redis, events
// and per-user frames cross instances and presence is shared.
type Hub struct {
	connections map[uuid.UUID]map[*Connection]bool
	// conversationID -> users on this instance
	subscribers map[uuid.UUID]map[uuid.UUID]bool
	mu          sync.RWMutex

	redis  *redis.Client
	pubsub *redis.PubSub

	register   chan *Connection
	unregister chan *Connection

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once

	instanceID string
	publish    func(ctx context.Context, channel string, payload []byte) error
}

// NewHub creates a hub. redisClient may be nil for a single instance.
func NewHub(redisClient *redis.Client) *Hub {
	return NewHubWithInstanceID(redisClient, uuid.NewString())
}

// NewHubWithInstanceID creates a hub with an explicit instance identifier.
func NewHubWithInstanceID(redisClient *redis.Client, instanceID string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		subscribers: make(map[uuid.UUID]map[uuid.UUID]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  instanceID,
	}

	if redisClient != nil {
		h.pubsub = redisClient.PSubscribe(ctx, conversationChannelPrefix+"*", userChannel)
		h.publish = func(ctx context.Context, channel string, payload []byte) error {
			return redisClient.Publish(ctx, channel, payload).Err()
		}
	}

	return h
}

// Run serves register/unregister until ctx is cancelled or Shutdown is called.
func (h *Hub) Run(ctx context.Context) error {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}
	defer h.Shutdown()

	refresh := time.NewTicker(presenceTTL / 2)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.ctx.Done():
			return nil
		case conn := <-h.register:
			h.addConnection(conn)
		case conn := <-h.unregister:
			h.removeConnection(conn)
		case <-refresh.C:
			h.refreshPresence()
		}
	}
}

func (h *Hub) addConnection(conn *Connection) {
	h.mu.Lock()
	first := len(h.connections[conn.UserID]) == 0
	if h.connections[conn.UserID] == nil {
		h.connections[conn.UserID] = make(map[*Connection]bool)
	}
	h.connections[conn.UserID][conn] = true
	for _, id := range conn.Conversations {
		h.subscribeLocked(id, conn.UserID)
	}
	h.mu.Unlock()
	wsConnectionsGauge.Add(1)

	h.trackPresence(conn.UserID, 1)
	if first {
		h.announcePresence(conn.UserID, EventOnline, conn.Conversations)
	}
	log.Debug().Str("user_id", conn.UserID.String()).Msg("User connected to WebSocket")
}

func (h *Hub) removeConnection(conn *Connection) {
	var (
		known bool
		last  bool
		left  []uuid.UUID
	)
	h.mu.Lock()
	if conns, ok := h.connections[conn.UserID]; ok && conns[conn] {
		known = true
		delete(conns, conn)
		close(conn.Send)
		wsConnectionsGauge.Add(-1)

		if len(conns) == 0 {
			last = true
			delete(h.connections, conn.UserID)
			for conversationID, users := range h.subscribers {
				if !users[conn.UserID] {
					continue
				}
				left = append(left, conversationID)
				delete(users, conn.UserID)
				if len(users) == 0 {
					delete(h.subscribers, conversationID)
				}
			}
		}
	}
	h.mu.Unlock()
	if !known {
		return
	}

	h.trackPresence(conn.UserID, -1)
	if last {
		h.announcePresence(conn.UserID, EventOffline, left)
	}
	log.Debug().Str("user_id", conn.UserID.String()).Msg("User disconnected from WebSocket")
}

// announcePresence tells the other participants of each conversation.
func (h *Hub) announcePresence(userID uuid.UUID, typ EventType, conversationIDs []uuid.UUID) {
	for _, id := range conversationIDs {
		h.BroadcastToConversation(id, &WSEvent{Type: typ, ConversationID: id, SenderID: userID})
	}
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()

	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch {
			case msg.Channel == userChannel:
				h.handleUserFrame(msg.Payload)
			case strings.HasPrefix(msg.Channel, conversationChannelPrefix):
				conversationID, err := uuid.Parse(strings.TrimPrefix(msg.Channel, conversationChannelPrefix))
				if err != nil {
					continue
				}
				h.deliverToConversation(conversationID, []byte(msg.Payload))
			}
		}
	}
}

// handleUserFrame delivers a frame published by another instance.
func (h *Hub) handleUserFrame(payload string) {
	var f userFrame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return
	}
	if f.Instance == h.instanceID || f.UserID == uuid.Nil {
		return
	}
	h.deliverToUser(f.UserID, f.Frame)
}

func (h *Hub) deliverToConversation(conversationID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for userID := range h.subscribers[conversationID] {
		h.sendLocked(userID, data)
	}
}

func (h *Hub) deliverToUser(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.sendLocked(userID, data)
}

// sendLocked never blocks; a full buffer drops the frame for that socket.
func (h *Hub) sendLocked(userID uuid.UUID, data []byte) {
	for conn := range h.connections[userID] {
		select {
		case conn.Send <- data:
			wsEventsSentTotal.Add(1)
		default:
			wsEventsDroppedTotal.Add(1)
			log.Warn().Str("user_id", userID.String()).Msg("WebSocket send buffer full")
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.ctx.Done():
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.ctx.Done():
	}
}

// SubscribeToConversation routes conversation events to userID's local
// connections.
func (h *Hub) SubscribeToConversation(conversationID, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribeLocked(conversationID, userID)
}

// SubscribeIfConnected subscribes each user that has a connection on this
// server. Used when a conversation is created after the socket opened.
func (h *Hub) SubscribeIfConnected(conversationID uuid.UUID, userIDs ...uuid.UUID) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, userID := range userIDs {
		if _, connected := h.connections[userID]; connected {
			h.subscribeLocked(conversationID, userID)
		}
	}
}

func (h *Hub) subscribeLocked(conversationID, userID uuid.UUID) {
	if h.subscribers[conversationID] == nil {
		h.subscribers[conversationID] = make(map[uuid.UUID]bool)
	}
	h.subscribers[conversationID][userID] = true
}

// UnsubscribeFromConversation removes user from conversation
func (h *Hub) UnsubscribeFromConversation(conversationID, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if users := h.subscribers[conversationID]; users != nil {
		delete(users, userID)
		if len(users) == 0 {
			delete(h.subscribers, conversationID)
		}
	}
}

// BroadcastToConversation sends event to every subscriber on every server.
// Without Redis, or when publishing fails, only local subscribers get it.
func (h *Hub) BroadcastToConversation(conversationID uuid.UUID, event *WSEvent) {
	if h == nil || event == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal WebSocket event")
		return
	}

	if h.publish == nil {
		h.deliverToConversation(conversationID, data)
		return
	}
	channel := conversationChannelPrefix + conversationID.String()
	if err := h.publish(h.ctx, channel, data); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Redis publish failed")
		h.deliverToConversation(conversationID, data)
	}
}

// SendToUser pushes frame to every socket of userID, here and on the
// other instances.
func (h *Hub) SendToUser(userID uuid.UUID, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	h.deliverToUser(userID, data)

	if h.publish == nil {
		return nil
	}
	payload, err := json.Marshal(userFrame{UserID: userID, Instance: h.instanceID, Frame: data})
	if err != nil {
		return err
	}
	return h.publish(h.ctx, userChannel, payload)
}

// trackPresence counts a user's sockets across instances. The key expires
// on its own if an instance dies without cleaning up.
func (h *Hub) trackPresence(userID uuid.UUID, delta int64) {
	if h.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()

	key := presenceKeyPrefix + userID.String()
	n, err := h.redis.IncrBy(ctx, key, delta).Result()
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Presence update failed")
		return
	}
	if n <= 0 {
		h.redis.Del(ctx, key)
		return
	}
	h.redis.Expire(ctx, key, presenceTTL)
}

// refreshPresence extends the keys of users connected to this instance.
func (h *Hub) refreshPresence() {
	if h.redis == nil {
		return
	}
	h.mu.RLock()
	users := make([]uuid.UUID, 0, len(h.connections))
	for id := range h.connections {
		users = append(users, id)
	}
	h.mu.RUnlock()
	if len(users) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()
	pipe := h.redis.Pipeline()
	for _, id := range users {
		pipe.Expire(ctx, presenceKeyPrefix+id.String(), presenceTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Int("users", len(users)).Msg("Presence refresh failed")
	}
}

// IsOnline reports whether userID has a socket on any instance.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	online := h.GetOnlineUsers([]uuid.UUID{userID})
	return len(online) == 1
}

// GetOnlineUsers filters userIDs down to those with an open socket.
func (h *Hub) GetOnlineUsers(userIDs []uuid.UUID) []uuid.UUID {
	online := make([]uuid.UUID, 0, len(userIDs))
	if h.redis == nil {
		h.mu.RLock()
		defer h.mu.RUnlock()
		for _, id := range userIDs {
			if len(h.connections[id]) > 0 {
				online = append(online, id)
			}
		}
		return online
	}
	if len(userIDs) == 0 {
		return online
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = presenceKeyPrefix + id.String()
	}
	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()
	values, err := h.redis.MGet(ctx, keys...).Result()
	if err != nil {
		log.Warn().Err(err).Msg("Presence lookup failed")
		return online
	}
	for i, v := range values {
		if v != nil {
			online = append(online, userIDs[i])
		}
	}
	return online
}

// IsUserSubscribed reports whether user is subscribed locally to the conversation.
func (h *Hub) IsUserSubscribed(conversationID, userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.subscribers[conversationID][userID]
}

// Shutdown stops the hub. Safe to call more than once.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.cancel()
		if h.pubsub != nil {
			h.pubsub.Close()
		}
	})
}

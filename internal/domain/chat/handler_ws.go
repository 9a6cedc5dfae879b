package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/creditswap/creditswap-api/internal/middleware"
	"github.com/creditswap/creditswap-api/internal/pkg/response"
)

// WebSocket constants
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	wsOpTimeout    = 5 * time.Second
)

// clientEvent is a frame sent by the browser.
type clientEvent struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

// WebSocket handles WS /ws
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	ids, err := h.service.ConversationIDs(r.Context(), userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to load conversations for socket")
	}

	client := &Connection{
		UserID:        userID,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		Conversations: ids,
	}

	h.hub.Register(client)

	go h.wsReader(client)
	go h.wsWriter(client)
}

func (h *Handler) wsReader(client *Connection) {
	defer func() {
		h.hub.Unregister(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", client.UserID.String()).Msg("WebSocket read error")
			}
			break
		}

		var event clientEvent
		if err := json.Unmarshal(message, &event); err != nil || event.ConversationID == uuid.Nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
		if h.rateLimiter != nil && !h.rateLimiter.Allow(ctx, client.UserID.String()) {
			cancel()
			continue
		}
		h.handleClientEvent(ctx, client, event)
		cancel()
	}
}

func (h *Handler) handleClientEvent(ctx context.Context, client *Connection, event clientEvent) {
	switch event.Type {
	case "subscribe":
		if err := h.service.CanAccess(ctx, client.UserID, event.ConversationID); err != nil {
			return
		}
		h.hub.SubscribeToConversation(event.ConversationID, client.UserID)
	case "typing":
		if !h.hub.IsUserSubscribed(event.ConversationID, client.UserID) {
			return
		}
		h.hub.BroadcastToConversation(event.ConversationID, &WSEvent{
			Type:           EventTyping,
			ConversationID: event.ConversationID,
			SenderID:       client.UserID,
		})
	case "read":
		if _, err := h.service.MarkRead(ctx, client.UserID, event.ConversationID); err != nil {
			log.Debug().Err(err).Str("user_id", client.UserID.String()).Msg("WebSocket mark read failed")
		}
	}
}

func (h *Handler) wsWriter(client *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

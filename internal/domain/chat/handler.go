package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/creditswap/creditswap-api/internal/middleware"
	"github.com/creditswap/creditswap-api/internal/pkg/errorhandler"
	"github.com/creditswap/creditswap-api/internal/pkg/response"
	"github.com/creditswap/creditswap-api/internal/pkg/validator"
)

// Handler handles chat HTTP requests
type Handler struct {
	service     *Service
	hub         *Hub
	rateLimiter *middleware.RateLimiter
	upgrader    websocket.Upgrader
}

// NewHandler creates chat handler
func NewHandler(service *Service, hub *Hub, rateLimiter *middleware.RateLimiter, allowedOrigins []string) *Handler {
	return &Handler{
		service:     service,
		hub:         hub,
		rateLimiter: rateLimiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")

				// Allow all in development
				if len(allowedOrigins) == 0 {
					return true
				}

				for _, allowed := range allowedOrigins {
					if allowed == "*" || origin == allowed {
						return true
					}
				}

				log.Warn().Str("origin", origin).Msg("WebSocket origin rejected")
				return false
			},
		},
	}
}

func (h *Handler) conversationView(v *ConversationView, viewer uuid.UUID) *ConversationResponse {
	resp := ConversationResponseFromEntity(v.Conversation, viewer, v.UnreadCount)
	perms := v.Permissions
	resp.Permissions = &perms
	otherID := v.Conversation.OtherParticipant(viewer)
	resp.OtherParticipant = &ParticipantInfo{ID: otherID, IsOnline: v.OtherOnline}
	if v.Other != nil {
		resp.OtherParticipant.DisplayName = v.Other.DisplayName
	}
	return resp
}

// StartConversation handles POST /chat/conversations
// @Summary Start or fetch a conversation
// @Tags Chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body StartConversationRequest true "Recipient and optional listing"
// @Success 201 {object} response.Response{data=ConversationResponse}
// @Failure 400,404,422,500 {object} response.Response
// @Router /chat/conversations [post]
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	userID := middleware.GetUserID(r.Context())
	conv, err := h.service.StartConversation(r.Context(), userID, &req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	view, err := h.service.GetConversation(r.Context(), userID, conv.ID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.Created(w, h.conversationView(view, userID))
}

// ListConversations handles GET /chat/conversations
// @Summary List conversations
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]ConversationResponse}
// @Router /chat/conversations [get]
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	views, err := h.service.ListConversations(r.Context(), userID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	items := make([]*ConversationResponse, len(views))
	for i, v := range views {
		items[i] = h.conversationView(v, userID)
	}
	response.OK(w, items)
}

// GetConversation handles GET /chat/conversations/{id}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid conversation ID")
		return
	}

	userID := middleware.GetUserID(r.Context())
	view, err := h.service.GetConversation(r.Context(), userID, conversationID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, h.conversationView(view, userID))
}

// SendMessage handles POST /chat/message
// @Summary Send a message
// @Tags Chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SendMessageRequest true "Message"
// @Success 201 {object} response.Response{data=SendMessageResponse}
// @Failure 400,403,404,409,422,429,500 {object} response.Response
// @Router /chat/message [post]
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	userID := middleware.GetUserID(r.Context())
	msg, perms, err := h.service.SendMessage(r.Context(), userID, &req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	response.Created(w, SendMessageResponse{
		Message:     MessageResponseFromEntity(msg, userID),
		Permissions: perms,
	})
}

// GetMessages handles GET /chat/{id}/messages
// @Summary Get conversation messages (marks them read)
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Response{data=[]MessageResponse}
// @Failure 400,403,404,500 {object} response.Response
// @Router /chat/{id}/messages [get]
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid conversation ID")
		return
	}

	limit := 50
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	userID := middleware.GetUserID(r.Context())
	messages, err := h.service.GetMessages(r.Context(), userID, conversationID, limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	items := make([]*MessageResponse, len(messages))
	for i, m := range messages {
		items[i] = MessageResponseFromEntity(m, userID)
	}
	response.OK(w, items)
}

// MarkRead handles PUT /chat/{id}/messages
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid conversation ID")
		return
	}

	marked, err := h.service.MarkRead(r.Context(), middleware.GetUserID(r.Context()), conversationID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, MarkReadResponse{Marked: marked})
}

// EditMessage handles PATCH /chat/messages/{id}
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid message ID")
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	userID := middleware.GetUserID(r.Context())
	msg, err := h.service.EditMessage(r.Context(), userID, messageID, req.Content)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, MessageResponseFromEntity(msg, userID))
}

// DeleteMessage handles DELETE /chat/messages/{id}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid message ID")
		return
	}

	if err := h.service.DeleteMessage(r.Context(), middleware.GetUserID(r.Context()), messageID); err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.NoContent(w)
}

// ListEdits handles GET /chat/messages/{id}/edits
func (h *Handler) ListEdits(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid message ID")
		return
	}

	edits, err := h.service.ListEdits(r.Context(), middleware.GetUserID(r.Context()), messageID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}

	items := make([]*MessageEditResponse, len(edits))
	for i, e := range edits {
		items[i] = MessageEditResponseFromEntity(e)
	}
	response.OK(w, items)
}

// ToggleReaction handles POST /chat/messages/{id}/reactions
func (h *Handler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid message ID")
		return
	}

	var req ReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	added, err := h.service.ToggleReaction(r.Context(), middleware.GetUserID(r.Context()), messageID, req.Emoji)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, map[string]any{"emoji": req.Emoji, "added": added})
}

// GetUnreadCount handles GET /chat/unread
// @Summary Total unread messages
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /chat/unread [get]
func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.UnreadTotal(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, map[string]int{"unread_count": count})
}

package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/creditswap/creditswap-api/internal/pkg/database"
)

// Repository defines chat data access interface. Multi-statement writes
// are only atomic when called inside a database.Transactor unit.
type Repository interface {
	// Conversation operations
	CreateConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	GetConversationForUpdate(ctx context.Context, id uuid.UUID) (*Conversation, error)
	GetByOffer(ctx context.Context, offerID uuid.UUID, forUpdate bool) (*Conversation, error)
	GetDirect(ctx context.Context, a, b uuid.UUID) (*Conversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*ConversationSummary, error)
	UpdateStage(ctx context.Context, id uuid.UUID, from, to Stage) (bool, error)
	TouchLastMessage(ctx context.Context, id uuid.UUID, msg *Message) error

	// Participant operations
	GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*Participant, error)
	IncrementSentIfBelow(ctx context.Context, conversationID, userID uuid.UUID, limit int) (bool, error)
	IncrementUnread(ctx context.Context, conversationID, exceptUserID uuid.UUID) error
	MarkRead(ctx context.Context, conversationID, userID uuid.UUID) (int64, error)
	CountUnreadByUser(ctx context.Context, userID uuid.UUID) (int, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, error)
	SoftDeleteMessage(ctx context.Context, id uuid.UUID) error
	AppendEdit(ctx context.Context, edit *MessageEdit) error
	ListEdits(ctx context.Context, messageID uuid.UUID) ([]*MessageEdit, error)
	ToggleReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new chat repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const conversationColumns = `c.id, c.participant_one_id, c.participant_two_id, c.listing_id, c.offer_id,
	c.owner_id, c.stage, c.last_message_id, c.last_message_preview, c.last_activity_at, c.created_at`

// messageColumns resolves the current content from the edit log.
const messageColumns = `m.id, m.conversation_id, m.sender_id, m.type, m.intent,
	COALESCE((SELECT e.new_content FROM message_edits e WHERE e.message_id = m.id
	          ORDER BY e.edited_at DESC, e.id DESC LIMIT 1), m.content) AS content,
	EXISTS (SELECT 1 FROM message_edits e WHERE e.message_id = m.id) AS edited,
	m.reply_to_id, m.created_at, m.deleted_at`

// Conversation operations

func (r *repository) CreateConversation(ctx context.Context, c *Conversation) error {
	conn := database.Conn(ctx, r.db)

	_, err := conn.NamedExecContext(ctx, `
		INSERT INTO conversations (id, participant_one_id, participant_two_id, listing_id, offer_id,
		                           owner_id, stage, last_message_preview, last_activity_at, created_at)
		VALUES (:id, :participant_one_id, :participant_two_id, :listing_id, :offer_id,
		        :owner_id, :stage, :last_message_preview, :last_activity_at, :created_at)
	`, c)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return ErrConversationExists
		}
		return fmt.Errorf("chat repository create conversation: %w", err)
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id)
		VALUES ($1, $2), ($1, $3)
	`, c.ID, c.ParticipantOneID, c.ParticipantTwoID)
	if err != nil {
		return fmt.Errorf("chat repository add participants: %w", err)
	}
	return nil
}

func (r *repository) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return r.getConversation(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1`, id)
}

func (r *repository) GetConversationForUpdate(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return r.getConversation(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1 FOR UPDATE`, id)
}

func (r *repository) GetByOffer(ctx context.Context, offerID uuid.UUID, forUpdate bool) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.offer_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return r.getConversation(ctx, query, offerID)
}

func (r *repository) GetDirect(ctx context.Context, a, b uuid.UUID) (*Conversation, error) {
	if b.String() < a.String() {
		a, b = b, a
	}
	return r.getConversation(ctx, `
		SELECT `+conversationColumns+` FROM conversations c
		WHERE c.participant_one_id = $1 AND c.participant_two_id = $2 AND c.listing_id IS NULL
	`, a, b)
}

func (r *repository) getConversation(ctx context.Context, query string, args ...interface{}) (*Conversation, error) {
	var c Conversation
	err := database.Conn(ctx, r.db).GetContext(ctx, &c, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chat repository get conversation: %w", err)
	}
	return &c, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*ConversationSummary, error) {
	query := `
		SELECT ` + conversationColumns + `, p.unread_count, p.sent_count
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.last_activity_at DESC, c.created_at DESC
	`
	items := make([]*ConversationSummary, 0)
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("chat repository list conversations: %w", err)
	}
	return items, nil
}

func (r *repository) UpdateStage(ctx context.Context, id uuid.UUID, from, to Stage) (bool, error) {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE conversations SET stage = $3 WHERE id = $1 AND stage = $2`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("chat repository update stage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

const previewRunes = 97

// previewOf cuts content on a rune boundary so the preview stays valid UTF-8.
func previewOf(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	return string([]rune(content)[:previewRunes]) + "..."
}

func (r *repository) TouchLastMessage(ctx context.Context, id uuid.UUID, msg *Message) error {
	preview := previewOf(msg.Content)

	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = $2, last_message_preview = $3, last_activity_at = $4
		WHERE id = $1
	`, id, msg.ID, preview, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("chat repository touch: %w", err)
	}
	return nil
}

// Participant operations

func (r *repository) GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*Participant, error) {
	var p Participant
	err := database.Conn(ctx, r.db).GetContext(ctx, &p, `
		SELECT conversation_id, user_id, unread_count, sent_count, last_read_at
		FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chat repository get participant: %w", err)
	}
	return &p, nil
}

// IncrementSentIfBelow bumps sent_count only while it is below limit.
// A negative limit increments unconditionally.
func (r *repository) IncrementSentIfBelow(ctx context.Context, conversationID, userID uuid.UUID, limit int) (bool, error) {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE conversation_participants
		SET sent_count = sent_count + 1
		WHERE conversation_id = $1 AND user_id = $2 AND ($3 < 0 OR sent_count < $3)
	`, conversationID, userID, limit)
	if err != nil {
		return false, fmt.Errorf("chat repository increment sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// IncrementUnread bumps unread_count for everyone but exceptUserID.
// uuid.Nil bumps every participant.
func (r *repository) IncrementUnread(ctx context.Context, conversationID, exceptUserID uuid.UUID) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE conversation_participants
		SET unread_count = unread_count + 1
		WHERE conversation_id = $1 AND user_id <> $2
	`, conversationID, exceptUserID)
	if err != nil {
		return fmt.Errorf("chat repository increment unread: %w", err)
	}
	return nil
}

// MarkRead writes receipts for every message the user has not read and
// resets the counter. Returns the number of new receipts.
func (r *repository) MarkRead(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	conn := database.Conn(ctx, r.db)

	result, err := conn.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, $2, NOW()
		FROM messages m
		WHERE m.conversation_id = $1
		  AND (m.sender_id IS NULL OR m.sender_id <> $2)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("chat repository mark read: %w", err)
	}
	receipts, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	_, err = conn.ExecContext(ctx, `
		UPDATE conversation_participants
		SET unread_count = 0, last_read_at = NOW()
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("chat repository reset unread: %w", err)
	}
	return receipts, nil
}

func (r *repository) CountUnreadByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := database.Conn(ctx, r.db).GetContext(ctx, &count,
		`SELECT COALESCE(SUM(unread_count), 0) FROM conversation_participants WHERE user_id = $1`, userID)
	return count, err
}

// Message operations

func (r *repository) CreateMessage(ctx context.Context, msg *Message) error {
	_, err := database.Conn(ctx, r.db).NamedExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, type, intent, content, reply_to_id, created_at)
		VALUES (:id, :conversation_id, :sender_id, :type, :intent, :content, :reply_to_id, :created_at)
	`, msg)
	if err != nil {
		return fmt.Errorf("chat repository create message: %w", err)
	}
	return nil
}

func (r *repository) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	var m Message
	err := database.Conn(ctx, r.db).GetContext(ctx, &m, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chat repository get message: %w", err)
	}
	return &m, nil
}

// ListMessages returns newest first, with read receipts and reactions.
func (r *repository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, error) {
	conn := database.Conn(ctx, r.db)

	messages := make([]*Message, 0)
	err := conn.SelectContext(ctx, &messages, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.conversation_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("chat repository list messages: %w", err)
	}
	if len(messages) == 0 {
		return messages, nil
	}

	ids := make([]uuid.UUID, len(messages))
	byID := make(map[uuid.UUID]*Message, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
		byID[m.ID] = m
	}

	var reads []struct {
		MessageID uuid.UUID `db:"message_id"`
		UserID    uuid.UUID `db:"user_id"`
	}
	query, args, err := sqlx.In(`SELECT message_id, user_id FROM message_reads WHERE message_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	if err := conn.SelectContext(ctx, &reads, conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("chat repository list reads: %w", err)
	}
	for _, rd := range reads {
		byID[rd.MessageID].ReadBy = append(byID[rd.MessageID].ReadBy, rd.UserID)
	}

	var reactions []*Reaction
	query, args, err = sqlx.In(`
		SELECT message_id, user_id, emoji, created_at FROM message_reactions
		WHERE message_id IN (?) ORDER BY created_at
	`, ids)
	if err != nil {
		return nil, err
	}
	if err := conn.SelectContext(ctx, &reactions, conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("chat repository list reactions: %w", err)
	}
	for _, rc := range reactions {
		byID[rc.MessageID].Reactions = append(byID[rc.MessageID].Reactions, rc)
	}

	return messages, nil
}

func (r *repository) SoftDeleteMessage(ctx context.Context, id uuid.UUID) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE messages SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("chat repository delete message: %w", err)
	}
	return nil
}

func (r *repository) AppendEdit(ctx context.Context, edit *MessageEdit) error {
	_, err := database.Conn(ctx, r.db).NamedExecContext(ctx, `
		INSERT INTO message_edits (id, message_id, editor_id, previous_content, new_content, edited_at)
		VALUES (:id, :message_id, :editor_id, :previous_content, :new_content, :edited_at)
	`, edit)
	if err != nil {
		return fmt.Errorf("chat repository append edit: %w", err)
	}
	return nil
}

func (r *repository) ListEdits(ctx context.Context, messageID uuid.UUID) ([]*MessageEdit, error) {
	edits := make([]*MessageEdit, 0)
	err := database.Conn(ctx, r.db).SelectContext(ctx, &edits, `
		SELECT id, message_id, editor_id, previous_content, new_content, edited_at
		FROM message_edits WHERE message_id = $1
		ORDER BY edited_at, id
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("chat repository list edits: %w", err)
	}
	return edits, nil
}

// ToggleReaction adds the reaction, or removes it when present. Reports
// whether the reaction exists afterwards.
func (r *repository) ToggleReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	conn := database.Conn(ctx, r.db)

	result, err := conn.ExecContext(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji)
	if err != nil {
		return false, fmt.Errorf("chat repository remove reaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return false, nil
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT DO NOTHING
	`, messageID, userID, emoji)
	if err != nil {
		return false, fmt.Errorf("chat repository add reaction: %w", err)
	}
	return true, nil
}

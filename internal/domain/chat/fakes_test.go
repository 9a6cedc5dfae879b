package chat

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/creditswap/creditswap-api/internal/domain/notification"
	"github.com/creditswap/creditswap-api/internal/domain/user"
)

type partKey struct{ conv, user uuid.UUID }

type readKey struct{ msg, user uuid.UUID }

type memRepo struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]Conversation
	participants  map[partKey]Participant
	messages      []Message
	edits         []MessageEdit
	reads         map[readKey]bool
	reactions     []Reaction

	createMessageErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		conversations: map[uuid.UUID]Conversation{},
		participants:  map[partKey]Participant{},
		reads:         map[readKey]bool{},
	}
}

func (m *memRepo) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	convs := make(map[uuid.UUID]Conversation, len(m.conversations))
	for k, v := range m.conversations {
		convs[k] = v
	}
	parts := make(map[partKey]Participant, len(m.participants))
	for k, v := range m.participants {
		parts[k] = v
	}
	reads := make(map[readKey]bool, len(m.reads))
	for k, v := range m.reads {
		reads[k] = v
	}
	messages := append([]Message(nil), m.messages...)
	edits := append([]MessageEdit(nil), m.edits...)
	reactions := append([]Reaction(nil), m.reactions...)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.conversations = convs
		m.participants = parts
		m.reads = reads
		m.messages = messages
		m.edits = edits
		m.reactions = reactions
	}
}

func (m *memRepo) CreateConversation(ctx context.Context, c *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.conversations {
		if c.OfferID.Valid && existing.OfferID == c.OfferID {
			return ErrConversationExists
		}
		if !c.ListingID.Valid && !existing.ListingID.Valid &&
			existing.ParticipantOneID == c.ParticipantOneID && existing.ParticipantTwoID == c.ParticipantTwoID {
			return ErrConversationExists
		}
	}
	m.conversations[c.ID] = *c
	m.participants[partKey{c.ID, c.ParticipantOneID}] = Participant{ConversationID: c.ID, UserID: c.ParticipantOneID}
	m.participants[partKey{c.ID, c.ParticipantTwoID}] = Participant{ConversationID: c.ID, UserID: c.ParticipantTwoID}
	return nil
}

func (m *memRepo) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memRepo) GetConversationForUpdate(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return m.GetConversation(ctx, id)
}

func (m *memRepo) GetByOffer(ctx context.Context, offerID uuid.UUID, forUpdate bool) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if c.OfferID.Valid && c.OfferID.UUID == offerID {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memRepo) GetDirect(ctx context.Context, a, b uuid.UUID) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if !c.ListingID.Valid && c.HasParticipant(a) && c.HasParticipant(b) {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*ConversationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ConversationSummary
	for _, c := range m.conversations {
		p, ok := m.participants[partKey{c.ID, userID}]
		if !ok {
			continue
		}
		out = append(out, &ConversationSummary{Conversation: c, UnreadCount: p.UnreadCount, SentCount: p.SentCount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

func (m *memRepo) UpdateStage(ctx context.Context, id uuid.UUID, from, to Stage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || c.Stage != from {
		return false, nil
	}
	c.Stage = to
	m.conversations[id] = c
	return true, nil
}

func (m *memRepo) TouchLastMessage(ctx context.Context, id uuid.UUID, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conversations[id]
	c.LastMessageID = uuid.NullUUID{UUID: msg.ID, Valid: true}
	c.LastMessagePreview = previewOf(msg.Content)
	c.LastActivityAt = msg.CreatedAt
	m.conversations[id] = c
	return nil
}

func (m *memRepo) GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[partKey{conversationID, userID}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memRepo) IncrementSentIfBelow(ctx context.Context, conversationID, userID uuid.UUID, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := partKey{conversationID, userID}
	p, ok := m.participants[key]
	if !ok || (limit >= 0 && p.SentCount >= limit) {
		return false, nil
	}
	p.SentCount++
	m.participants[key] = p
	return true, nil
}

func (m *memRepo) IncrementUnread(ctx context.Context, conversationID, exceptUserID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, p := range m.participants {
		if k.conv == conversationID && k.user != exceptUserID {
			p.UnreadCount++
			m.participants[k] = p
		}
	}
	return nil
}

func (m *memRepo) MarkRead(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var marked int64
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID || msg.IsFrom(userID) {
			continue
		}
		key := readKey{msg.ID, userID}
		if !m.reads[key] {
			m.reads[key] = true
			marked++
		}
	}
	pk := partKey{conversationID, userID}
	p := m.participants[pk]
	p.UnreadCount = 0
	p.LastReadAt.Valid = true
	m.participants[pk] = p
	return marked, nil
}

func (m *memRepo) CountUnreadByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for k, p := range m.participants {
		if k.user == userID {
			total += p.UnreadCount
		}
	}
	return total, nil
}

func (m *memRepo) CreateMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createMessageErr != nil {
		return m.createMessageErr
	}
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memRepo) resolve(msg Message) *Message {
	for i := len(m.edits) - 1; i >= 0; i-- {
		if m.edits[i].MessageID == msg.ID {
			msg.Content = m.edits[i].NewContent
			msg.Edited = true
			break
		}
	}
	for k := range m.reads {
		if k.msg == msg.ID {
			msg.ReadBy = append(msg.ReadBy, k.user)
		}
	}
	for i := range m.reactions {
		if m.reactions[i].MessageID == msg.ID {
			r := m.reactions[i]
			msg.Reactions = append(msg.Reactions, &r)
		}
	}
	return &msg
}

func (m *memRepo) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return m.resolve(msg), nil
		}
	}
	return nil, nil
}

func (m *memRepo) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Message
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].ConversationID == conversationID {
			out = append(out, m.resolve(m.messages[i]))
		}
	}
	if offset >= len(out) {
		return []*Message{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *memRepo) SoftDeleteMessage(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].ID == id {
			m.messages[i].DeletedAt.Valid = true
			m.messages[i].DeletedAt.Time = time.Now()
		}
	}
	return nil
}

func (m *memRepo) AppendEdit(ctx context.Context, edit *MessageEdit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, *edit)
	return nil
}

func (m *memRepo) ListEdits(ctx context.Context, messageID uuid.UUID) ([]*MessageEdit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MessageEdit, 0)
	for i := range m.edits {
		if m.edits[i].MessageID == messageID {
			e := m.edits[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

func (m *memRepo) ToggleReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.reactions {
		if r.MessageID == messageID && r.UserID == userID && r.Emoji == emoji {
			m.reactions = append(m.reactions[:i], m.reactions[i+1:]...)
			return false, nil
		}
	}
	m.reactions = append(m.reactions, Reaction{MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: time.Now()})
	return true, nil
}

func (m *memRepo) participant(convID, userID uuid.UUID) Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participants[partKey{convID, userID}]
}

// snapshotTx restores the in-memory store when the unit of work fails.
type snapshotTx struct{ m *memRepo }

func (s snapshotTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	restore := s.m.snapshot()
	if err := fn(ctx); err != nil {
		restore()
		return err
	}
	return nil
}

type memUsers struct {
	users map[uuid.UUID]*user.User
}

func newMemUsers(ids ...uuid.UUID) *memUsers {
	m := &memUsers{users: map[uuid.UUID]*user.User{}}
	for i, id := range ids {
		m.users[id] = &user.User{ID: id, DisplayName: "user-" + string(rune('a'+i))}
	}
	return m
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return m.users[id], nil
}

func (m *memUsers) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*user.User, error) {
	out := map[uuid.UUID]*user.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type memOffers struct {
	refs []*OfferRef
}

func (m *memOffers) FindBetween(ctx context.Context, listingID, a, b uuid.UUID) (*OfferRef, error) {
	for _, r := range m.refs {
		if r.ListingID != listingID {
			continue
		}
		if (r.WorkerID == a && r.PosterID == b) || (r.WorkerID == b && r.PosterID == a) {
			return r, nil
		}
	}
	return nil, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (r *recordingNotifier) Notify(ctx context.Context, e notification.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// fixture is a worker/poster pair with a pending offer on one listing.
type fixture struct {
	svc      *Service
	repo     *memRepo
	hub      *Hub
	notifier *recordingNotifier
	offers   *memOffers

	worker, poster uuid.UUID
	listingID      uuid.UUID
	offer          *OfferRef
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMemRepo(),
		hub:       NewHub(nil),
		notifier:  &recordingNotifier{},
		worker:    uuid.New(),
		poster:    uuid.New(),
		listingID: uuid.New(),
	}
	f.offer = &OfferRef{ID: uuid.New(), ListingID: f.listingID, WorkerID: f.worker, PosterID: f.poster, Status: "pending"}
	f.offers = &memOffers{refs: []*OfferRef{f.offer}}
	f.svc = NewService(f.repo, newMemUsers(f.worker, f.poster), snapshotTx{f.repo}, f.hub, f.notifier, NewPolicy(3))
	f.svc.SetOfferLookup(f.offers)
	return f
}

func (f *fixture) open(t *testing.T) *Conversation {
	t.Helper()
	change, err := f.svc.OpenForOffer(context.Background(), f.offer, "New offer")
	if err != nil {
		t.Fatalf("open for offer: %v", err)
	}
	return change.Conversation
}

func (f *fixture) send(conv *Conversation, from uuid.UUID, content string, intent Intent) (*Message, Permissions, error) {
	id := conv.ID
	return f.svc.SendMessage(context.Background(), from, &SendMessageRequest{
		ConversationID: &id,
		Content:        content,
		Intent:         string(intent),
	})
}

// connect registers a local connection directly with the hub maps.
func connect(h *Hub, userID uuid.UUID, conversationIDs ...uuid.UUID) *Connection {
	conn := &Connection{UserID: userID, Send: make(chan []byte, 16)}
	h.mu.Lock()
	if h.connections[userID] == nil {
		h.connections[userID] = map[*Connection]bool{}
	}
	h.connections[userID][conn] = true
	h.mu.Unlock()
	for _, id := range conversationIDs {
		h.SubscribeToConversation(id, userID)
	}
	return conn
}

func waitEvent(t *testing.T, ch <-chan []byte) WSEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var event WSEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("unmarshal ws event: %v", err)
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting websocket event")
	}
	return WSEvent{}
}

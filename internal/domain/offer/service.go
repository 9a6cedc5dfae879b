package offer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditswap/creditswap-api/internal/domain/chat"
	"github.com/creditswap/creditswap-api/internal/domain/listing"
	"github.com/creditswap/creditswap-api/internal/domain/notification"
	"github.com/creditswap/creditswap-api/internal/pkg/database"
)

// ListingStore is the listing access the offer flow needs.
type ListingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*listing.Listing, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to listing.Status) (bool, error)
}

// Conversations is the chat lifecycle surface driven by offers. Open and
// Advance join the caller's transaction; Announce runs after commit.
type Conversations interface {
	OpenForOffer(ctx context.Context, ref *chat.OfferRef, text string) (*chat.StageChange, error)
	AdvanceForOffer(ctx context.Context, offerID uuid.UUID, to chat.Stage, msgType chat.MessageType, text string) (*chat.StageChange, error)
	Announce(changes ...*chat.StageChange)
}

// Service runs the offer lifecycle
type Service struct {
	repo          Repository
	listings      ListingStore
	conversations Conversations
	tx            database.Transactor
	notifier      notification.Notifier
}

// NewService creates offer service
func NewService(repo Repository, listings ListingStore, conversations Conversations, tx database.Transactor, notifier notification.Notifier) *Service {
	if notifier == nil {
		notifier = notification.Discard
	}
	return &Service{
		repo:          repo,
		listings:      listings,
		conversations: conversations,
		tx:            tx,
		notifier:      notifier,
	}
}

func ref(o *Offer) *chat.OfferRef {
	return &chat.OfferRef{
		ID:        o.ID,
		ListingID: o.ListingID,
		WorkerID:  o.WorkerID,
		PosterID:  o.PosterID,
		Status:    string(o.Status),
	}
}

// Apply creates a pending offer from worker on the listing and opens the
// negotiation conversation with the poster.
func (s *Service) Apply(ctx context.Context, worker, listingID uuid.UUID, req *ApplyRequest) (*Offer, error) {
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, listing.ErrListingNotFound
	}
	if l.IsOwnedBy(worker) {
		return nil, ErrOwnListing
	}
	if !l.IsOpen() {
		return nil, listing.ErrNotOpen
	}
	existing, err := s.repo.GetByListingAndWorker(ctx, listingID, worker)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyApplied
	}

	now := time.Now().UTC()
	o := &Offer{
		ID:              uuid.New(),
		ListingID:       l.ID,
		WorkerID:        worker,
		PosterID:        l.OwnerID,
		Message:         strings.TrimSpace(req.Message),
		ProposedCredits: toNullInt32(req.ProposedCredits),
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var change *chat.StageChange
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.listings.GetForUpdate(ctx, l.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return listing.ErrListingNotFound
		}
		if !locked.IsOpen() {
			return listing.ErrNotOpen
		}
		if err := s.repo.Create(ctx, o); err != nil {
			return err
		}

		text := "New offer for \"" + locked.Title + "\""
		if o.Message != "" {
			text += ": " + o.Message
		}
		change, err = s.conversations.OpenForOffer(ctx, ref(o), text)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.conversations.Announce(change)
	s.notifier.Notify(ctx, notification.Event{
		UserID: o.PosterID,
		Type:   notification.TypeOfferReceived,
		Title:  "New offer received",
		Body:   "Someone applied to \"" + l.Title + "\"",
		Data:   offerData(o, change),
	})

	log.Info().
		Str("offer_id", o.ID.String()).
		Str("listing_id", o.ListingID.String()).
		Str("worker_id", worker.String()).
		Msg("Offer created")
	return o, nil
}

// Accept hires the offer's worker. The listing moves to in_progress, every
// other pending offer is rejected and their conversations archived.
func (s *Service) Accept(ctx context.Context, actor, offerID uuid.UUID) (*Offer, []*Offer, error) {
	current, err := s.repo.GetByID(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		return nil, nil, ErrOfferNotFound
	}
	if current.PosterID != actor {
		return nil, nil, ErrNotPoster
	}

	var (
		accepted *Offer
		rejected []*Offer
		changes  []*chat.StageChange
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// Listing before offer, the same order completion uses.
		l, err := s.listings.GetForUpdate(ctx, current.ListingID)
		if err != nil {
			return err
		}
		if l == nil {
			return listing.ErrListingNotFound
		}

		o, err := s.repo.GetForUpdate(ctx, offerID)
		if err != nil {
			return err
		}
		if o == nil {
			return ErrOfferNotFound
		}
		if !o.IsPending() {
			return ErrNotPending.WithDetails(map[string]any{"status": o.Status})
		}
		if !l.IsOpen() {
			return listing.ErrNotOpen
		}

		ok, err := s.repo.TransitionStatus(ctx, o.ID, StatusPending, StatusAccepted)
		if err != nil {
			return err
		}
		if !ok {
			return ErrDecidedConcurrently
		}
		ok, err = s.listings.TransitionStatus(ctx, l.ID, listing.StatusOpen, listing.StatusInProgress)
		if err != nil {
			return err
		}
		if !ok {
			return listing.ErrStatusChanged
		}

		rejected, err = s.repo.RejectSiblings(ctx, l.ID, o.ID)
		if err != nil {
			return err
		}
		for _, r := range rejected {
			change, err := s.conversations.AdvanceForOffer(ctx, r.ID, chat.StageArchived, chat.MessageTypeOfferUpdate,
				"Another offer was accepted for \""+l.Title+"\"")
			if err != nil {
				return err
			}
			changes = append(changes, change)
		}

		change, err := s.conversations.AdvanceForOffer(ctx, o.ID, chat.StageWork, chat.MessageTypeOfferUpdate,
			"Offer accepted. Work on \""+l.Title+"\" can begin.")
		if err != nil {
			return err
		}
		changes = append(changes, change)

		o.Status = StatusAccepted
		accepted = o
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.conversations.Announce(changes...)
	s.notifier.Notify(ctx, notification.Event{
		UserID: accepted.WorkerID,
		Type:   notification.TypeOfferAccepted,
		Title:  "Offer accepted",
		Body:   "You were hired. Work can begin.",
		Data:   offerData(accepted, nil),
	})
	for _, r := range rejected {
		s.notifier.Notify(ctx, notification.Event{
			UserID: r.WorkerID,
			Type:   notification.TypeOfferRejected,
			Title:  "Offer not selected",
			Body:   "The poster hired someone else.",
			Data:   offerData(r, nil),
		})
	}

	log.Info().
		Str("offer_id", accepted.ID.String()).
		Str("listing_id", accepted.ListingID.String()).
		Int("rejected", len(rejected)).
		Msg("Offer accepted")
	return accepted, rejected, nil
}

// Reject declines a pending offer. Poster only.
func (s *Service) Reject(ctx context.Context, actor, offerID uuid.UUID) (*Offer, error) {
	o, err := s.close(ctx, offerID, StatusRejected, func(o *Offer) error {
		if o.PosterID != actor {
			return ErrNotPoster
		}
		return nil
	}, "Offer rejected")
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notification.Event{
		UserID: o.WorkerID,
		Type:   notification.TypeOfferRejected,
		Title:  "Offer rejected",
		Body:   "The poster declined your offer.",
		Data:   offerData(o, nil),
	})
	return o, nil
}

// Withdraw retracts a pending offer. Worker only.
func (s *Service) Withdraw(ctx context.Context, actor, offerID uuid.UUID) (*Offer, error) {
	return s.close(ctx, offerID, StatusWithdrawn, func(o *Offer) error {
		if o.WorkerID != actor {
			return ErrNotWorker
		}
		return nil
	}, "Offer withdrawn")
}

// close moves a pending offer to a final status and archives its conversation.
func (s *Service) close(ctx context.Context, offerID uuid.UUID, to Status, authorize func(*Offer) error, text string) (*Offer, error) {
	var (
		closed *Offer
		change *chat.StageChange
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, offerID)
		if err != nil {
			return err
		}
		if o == nil {
			return ErrOfferNotFound
		}
		if err := authorize(o); err != nil {
			return err
		}
		if !o.IsPending() {
			return ErrNotPending.WithDetails(map[string]any{"status": o.Status})
		}

		ok, err := s.repo.TransitionStatus(ctx, o.ID, StatusPending, to)
		if err != nil {
			return err
		}
		if !ok {
			return ErrDecidedConcurrently
		}
		change, err = s.conversations.AdvanceForOffer(ctx, o.ID, chat.StageArchived, chat.MessageTypeOfferUpdate, text)
		if err != nil {
			return err
		}

		o.Status = to
		closed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.conversations.Announce(change)
	log.Info().
		Str("offer_id", closed.ID.String()).
		Str("status", string(to)).
		Msg("Offer closed")
	return closed, nil
}

// Update edits the message or proposed credits of a pending offer. Worker only.
func (s *Service) Update(ctx context.Context, actor, offerID uuid.UUID, req *UpdateOfferRequest) (*Offer, error) {
	var updated *Offer
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, offerID)
		if err != nil {
			return err
		}
		if o == nil {
			return ErrOfferNotFound
		}
		if o.WorkerID != actor {
			return ErrNotWorker
		}
		if !o.IsPending() {
			return ErrNotPending.WithDetails(map[string]any{"status": o.Status})
		}

		if req.Message != nil {
			o.Message = strings.TrimSpace(*req.Message)
		}
		if req.ProposedCredits != nil {
			o.ProposedCredits = toNullInt32(req.ProposedCredits)
		}
		o.UpdatedAt = time.Now().UTC()

		ok, err := s.repo.UpdateTerms(ctx, o)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Get returns an offer visible to its worker or poster.
func (s *Service) Get(ctx context.Context, actor, offerID uuid.UUID) (*Offer, error) {
	o, err := s.repo.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOfferNotFound
	}
	if !o.IsParty(actor) {
		return nil, ErrNotParty
	}
	return o, nil
}

// ListByListing returns offers on a listing. Poster only.
func (s *Service) ListByListing(ctx context.Context, actor, listingID uuid.UUID, limit, offset int) ([]*Offer, int, error) {
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, 0, err
	}
	if l == nil {
		return nil, 0, listing.ErrListingNotFound
	}
	if !l.IsOwnedBy(actor) {
		return nil, 0, listing.ErrNotOwner
	}
	limit, offset = page(limit, offset)
	return s.repo.ListByListing(ctx, listingID, limit, offset)
}

// ListMine returns the worker's offers, optionally filtered by status.
func (s *Service) ListMine(ctx context.Context, worker uuid.UUID, status Status, limit, offset int) ([]*Offer, int, error) {
	if status != "" && !status.IsValid() {
		return nil, 0, ErrInvalidStatus
	}
	limit, offset = page(limit, offset)
	return s.repo.ListByWorker(ctx, worker, status, limit, offset)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func offerData(o *Offer, change *chat.StageChange) map[string]any {
	data := map[string]any{
		"offer_id":   o.ID.String(),
		"listing_id": o.ListingID.String(),
	}
	if change != nil && change.Conversation != nil {
		data["conversation_id"] = change.Conversation.ID.String()
	}
	return data
}

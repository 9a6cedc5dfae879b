package completion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditswap/creditswap-api/internal/domain/chat"
	"github.com/creditswap/creditswap-api/internal/domain/credit"
	"github.com/creditswap/creditswap-api/internal/domain/listing"
	"github.com/creditswap/creditswap-api/internal/domain/notification"
	"github.com/creditswap/creditswap-api/internal/domain/offer"
	"github.com/creditswap/creditswap-api/internal/pkg/database"
)

// ListingStore is the listing access completion needs.
type ListingStore interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (*listing.Listing, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to listing.Status) (bool, error)
}

// OfferStore finds the hired offer of a listing.
type OfferStore interface {
	GetAcceptedByListing(ctx context.Context, listingID uuid.UUID) (*offer.Offer, error)
}

// Ledger moves credits between users.
type Ledger interface {
	Transfer(ctx context.Context, from, to uuid.UUID, amount int, typ credit.Type, meta credit.Meta) (*credit.Transaction, error)
}

// Conversations closes the work conversation.
type Conversations interface {
	AdvanceForOffer(ctx context.Context, offerID uuid.UUID, to chat.Stage, msgType chat.MessageType, text string) (*chat.StageChange, error)
	Announce(changes ...*chat.StageChange)
}

// Result is what a completed job produced.
type Result struct {
	Listing     *listing.Listing
	Offer       *offer.Offer
	Transaction *credit.Transaction
}

// Service completes hired listings and pays the worker.
type Service struct {
	listings      ListingStore
	offers        OfferStore
	ledger        Ledger
	conversations Conversations
	tx            database.Transactor
	notifier      notification.Notifier
}

// NewService creates completion service
func NewService(listings ListingStore, offers OfferStore, ledger Ledger, conversations Conversations, tx database.Transactor, notifier notification.Notifier) *Service {
	if notifier == nil {
		notifier = notification.Discard
	}
	return &Service{
		listings:      listings,
		offers:        offers,
		ledger:        ledger,
		conversations: conversations,
		tx:            tx,
		notifier:      notifier,
	}
}

// Complete pays the listing price from the poster to the hired worker,
// marks the listing completed and closes the conversation. Everything
// happens in one transaction; any failure leaves no trace.
func (s *Service) Complete(ctx context.Context, actor, listingID uuid.UUID) (*Result, error) {
	var (
		res    *Result
		change *chat.StageChange
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		l, err := s.listings.GetForUpdate(ctx, listingID)
		if err != nil {
			return err
		}
		if l == nil {
			return listing.ErrListingNotFound
		}
		if !l.IsOwnedBy(actor) {
			return listing.ErrNotOwner
		}
		if l.Status != listing.StatusInProgress {
			return listing.ErrNotInProgress.WithDetails(map[string]any{"status": l.Status})
		}

		o, err := s.offers.GetAcceptedByListing(ctx, l.ID)
		if err != nil {
			return err
		}
		if o == nil {
			return ErrNoAcceptedOffer
		}

		entry, err := s.ledger.Transfer(ctx, l.OwnerID, o.WorkerID, l.Credits, credit.TypePayment, credit.Meta{
			RelatedEntityType: "listing",
			RelatedEntityID:   l.ID,
			Description:       fmt.Sprintf("Payment for %q", l.Title),
		})
		if err != nil {
			return err
		}

		ok, err := s.listings.TransitionStatus(ctx, l.ID, listing.StatusInProgress, listing.StatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return listing.ErrStatusChanged
		}
		l.Status = listing.StatusCompleted

		change, err = s.conversations.AdvanceForOffer(ctx, o.ID, chat.StageCompleted, chat.MessageTypePayment,
			fmt.Sprintf("Job completed. %d credits paid.", l.Credits))
		if err != nil {
			return err
		}

		res = &Result{Listing: l, Offer: o, Transaction: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.conversations.Announce(change)

	data := map[string]any{
		"listing_id":     res.Listing.ID.String(),
		"offer_id":       res.Offer.ID.String(),
		"transaction_id": res.Transaction.ID.String(),
		"amount":         res.Transaction.Amount,
	}
	s.notifier.Notify(ctx, notification.Event{
		UserID: res.Offer.WorkerID,
		Type:   notification.TypePaymentReceived,
		Title:  "Payment received",
		Body:   fmt.Sprintf("You received %d credits for %q", res.Transaction.Amount, res.Listing.Title),
		Data:   data,
	})
	s.notifier.Notify(ctx, notification.Event{
		UserID: res.Listing.OwnerID,
		Type:   notification.TypeJobCompleted,
		Title:  "Job completed",
		Body:   fmt.Sprintf("%q is complete and the worker has been paid", res.Listing.Title),
		Data:   data,
	})

	log.Info().
		Str("listing_id", res.Listing.ID.String()).
		Str("worker_id", res.Offer.WorkerID.String()).
		Int("amount", res.Transaction.Amount).
		Msg("Listing completed")
	return res, nil
}

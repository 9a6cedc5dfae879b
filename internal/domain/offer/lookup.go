package offer

import (
	"context"

	"github.com/google/uuid"

	"github.com/creditswap/creditswap-api/internal/domain/chat"
	"github.com/creditswap/creditswap-api/internal/domain/listing"
)

// ChatLookup resolves the offer behind a listing conversation.
type ChatLookup struct {
	offers   Repository
	listings ListingStore
}

// NewChatLookup creates the chat.OfferLookup backed by offers and listings
func NewChatLookup(offers Repository, listings ListingStore) *ChatLookup {
	return &ChatLookup{offers: offers, listings: listings}
}

var _ chat.OfferLookup = (*ChatLookup)(nil)

// FindBetween returns the offer on listingID where one of a, b is the
// worker and the other the poster, or nil.
func (l *ChatLookup) FindBetween(ctx context.Context, listingID, a, b uuid.UUID) (*chat.OfferRef, error) {
	for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		o, err := l.offers.GetByListingAndWorker(ctx, listingID, pair[0])
		if err != nil {
			return nil, err
		}
		if o == nil || o.PosterID != pair[1] {
			continue
		}

		r := ref(o)
		lst, err := l.listings.GetByID(ctx, listingID)
		if err != nil {
			return nil, err
		}
		r.ListingCompleted = lst != nil && lst.Status == listing.StatusCompleted
		return r, nil
	}
	return nil, nil
}

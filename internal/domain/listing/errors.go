package listing

import "github.com/creditswap/creditswap-api/internal/pkg/apperror"

var (
	ErrListingNotFound = apperror.New(apperror.KindNotFound, "listing not found")
	ErrNotOwner        = apperror.New(apperror.KindAuthorization, "only the listing owner can do this")
	ErrNotOpen         = apperror.New(apperror.KindInvalidState, "listing is not open")
	ErrNotInProgress   = apperror.New(apperror.KindInvalidState, "listing is not in progress")
	ErrStatusChanged   = apperror.New(apperror.KindInvalidState, "listing status changed, reload and retry")
	ErrHasOffers       = apperror.New(apperror.KindInvalidState, "listing has offers and cannot be deleted")
)

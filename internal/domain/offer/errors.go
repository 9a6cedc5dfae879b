package offer

import "github.com/creditswap/creditswap-api/internal/pkg/apperror"

var (
	ErrOfferNotFound       = apperror.New(apperror.KindNotFound, "offer not found")
	ErrAlreadyApplied      = apperror.New(apperror.KindConflict, "you have already applied to this listing")
	ErrOwnListing          = apperror.New(apperror.KindConflict, "cannot apply to your own listing")
	ErrNotPoster           = apperror.New(apperror.KindAuthorization, "only the listing owner can decide on offers")
	ErrNotWorker           = apperror.New(apperror.KindAuthorization, "only the applicant can change this offer")
	ErrNotParty            = apperror.New(apperror.KindAuthorization, "you cannot view this offer")
	ErrNotPending          = apperror.New(apperror.KindInvalidState, "offer is no longer pending")
	ErrDecidedConcurrently = apperror.New(apperror.KindConflict, "offer was decided by another request")
	ErrInvalidStatus       = apperror.New(apperror.KindValidation, "invalid offer status")
)

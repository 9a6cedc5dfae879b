package credit

import (
	"errors"

	"github.com/creditswap/creditswap-api/internal/pkg/apperror"
)

var (
	ErrInsufficientCredits = apperror.New(apperror.KindInsufficientFunds, "insufficient credits")
	ErrInvalidAmount       = apperror.New(apperror.KindValidation, "amount must be greater than 0")
	ErrSelfTransfer        = apperror.New(apperror.KindValidation, "cannot transfer credits to yourself")
	ErrUserNotFound        = apperror.New(apperror.KindNotFound, "user not found")
	ErrReferenceConflict   = apperror.New(apperror.KindConflict, "reference id already used")

	// ErrInternal wraps storage failures.
	ErrInternal = errors.New("credit: internal error")
)

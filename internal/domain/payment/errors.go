package payment

import (
	"errors"

	"github.com/creditswap/creditswap-api/internal/pkg/apperror"
)

var (
	ErrUnknownPackage  = apperror.New(apperror.KindValidation, "unknown credit package")
	ErrUnknownMethod   = apperror.New(apperror.KindValidation, "unsupported payment method")
	ErrReferenceReused = apperror.New(apperror.KindConflict, "reference id already used for another purchase")
)

// errReferenceRace means another transaction stored the reference after
// this one looked it up.
var errReferenceRace = errors.New("payment reference taken concurrently")

package completion

import "github.com/creditswap/creditswap-api/internal/pkg/apperror"

var ErrNoAcceptedOffer = apperror.New(apperror.KindInvalidState, "listing has no accepted offer")

package user

import "github.com/creditswap/creditswap-api/internal/pkg/apperror"

var (
	ErrUserNotFound       = apperror.New(apperror.KindNotFound, "user not found")
	ErrEmailAlreadyExists = apperror.New(apperror.KindConflict, "email already registered")
)

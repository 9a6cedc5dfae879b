package notification

import "github.com/creditswap/creditswap-api/internal/pkg/apperror"

var ErrNotificationNotFound = apperror.New(apperror.KindNotFound, "notification not found")

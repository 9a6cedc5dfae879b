package errorhandler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/creditswap/creditswap-api/internal/pkg/apperror"
	"github.com/creditswap/creditswap-api/internal/pkg/logger"
	"github.com/creditswap/creditswap-api/internal/pkg/response"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusUnprocessableEntity
	case apperror.KindAuthorization:
		return http.StatusForbidden
	case apperror.KindInvalidState, apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindRateLimit:
		return http.StatusTooManyRequests
	case apperror.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case apperror.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Handle writes the envelope for err. Classified errors are surfaced
// verbatim; anything else is logged and reported as an internal error.
func Handle(ctx context.Context, w http.ResponseWriter, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		HandleError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
		return
	}

	status := StatusFor(appErr.Kind)
	logger.FromContext(ctx).Debug().
		Str("error_code", string(appErr.Kind)).
		Int("status_code", status).
		Msg(appErr.Error())

	response.ErrorWithDetails(w, status, string(appErr.Kind), appErr.Error(), appErr.Details)
}

// HandleError logs the failure with request context and writes a generic error body.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := logger.FromContext(ctx).Error().
		Str("error_code", code).
		Int("status_code", status)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(message)

	response.Error(w, status, code, message)
}

// HandlePanicError logs a recovered panic and writes a 500.
func HandlePanicError(ctx context.Context, w http.ResponseWriter, panicErr interface{}, stackTrace string) {
	log.Error().
		Str("request_id", logger.RequestID(ctx)).
		Interface("panic_error", panicErr).
		Str("panic_stack", stackTrace).
		Msg("Request panic error")

	response.InternalError(w)
}

// LogValidationError logs validation errors with details
func LogValidationError(ctx context.Context, fieldErrors map[string]string) {
	errJSON, _ := json.Marshal(fieldErrors)
	logger.FromContext(ctx).Warn().
		RawJSON("validation_errors", errJSON).
		Msg("Validation error")
}

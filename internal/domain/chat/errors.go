package chat

import "github.com/creditswap/creditswap-api/internal/pkg/apperror"

var (
	ErrConversationNotFound = apperror.New(apperror.KindNotFound, "conversation not found")
	ErrMessageNotFound      = apperror.New(apperror.KindNotFound, "message not found")
	ErrUserNotFound         = apperror.New(apperror.KindNotFound, "user not found")
	ErrOfferRequired        = apperror.New(apperror.KindNotFound, "no offer links you to this user on this listing")

	ErrNotParticipant   = apperror.New(apperror.KindAuthorization, "you are not a participant of this conversation")
	ErrNotMessageSender = apperror.New(apperror.KindAuthorization, "only the sender can change this message")

	ErrCannotChatSelf   = apperror.New(apperror.KindValidation, "cannot start a conversation with yourself")
	ErrEmptyContent     = apperror.New(apperror.KindValidation, "message content is required")
	ErrInvalidType      = apperror.New(apperror.KindValidation, "unknown or system-only message type")
	ErrInvalidIntent    = apperror.New(apperror.KindValidation, "unknown message intent")
	ErrInvalidReply     = apperror.New(apperror.KindValidation, "reply target is not in this conversation")
	ErrInvalidEmoji     = apperror.New(apperror.KindValidation, "emoji is required")
	ErrMissingRecipient = apperror.New(apperror.KindValidation, "conversation_id or recipient_id is required")

	ErrConversationReadOnly = apperror.New(apperror.KindInvalidState, "conversation is read-only")
	ErrIntentNotAllowed     = apperror.New(apperror.KindInvalidState, "intent is not allowed at this stage")
	ErrInvalidTransition    = apperror.New(apperror.KindInvalidState, "invalid conversation stage transition")
	ErrMessageNotEditable   = apperror.New(apperror.KindInvalidState, "only text messages can be edited")

	ErrMessageCapReached = apperror.New(apperror.KindRateLimit, "message limit reached for this stage")

	ErrConversationExists = apperror.New(apperror.KindConflict, "conversation already exists")
)

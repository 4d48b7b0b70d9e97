package bridge

import "context"

// DeliveryState is the amoCRM delivery_status wire value.
type DeliveryState int

const (
	DeliveryDelivered DeliveryState = 1
	DeliveryRead      DeliveryState = 2
	DeliveryError     DeliveryState = -1
)

// ErrorCode is the fixed set of delivery-error codes understood by amoCRM.
type ErrorCode int

const (
	ErrCodeChatDeleted      ErrorCode = 901
	ErrCodeChannelDisabled  ErrorCode = 902
	ErrCodeInternal         ErrorCode = 903
	ErrCodeCannotCreateChat ErrorCode = 904
	ErrCodeUnknown          ErrorCode = 905
)

// Sender forwards a canonical message to its platform.
type Sender interface {
	SendMessage(ctx context.Context, msg *Message) (SendResult, error)
}

// StatusNotifier pushes a canonical status update to its platform.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, status StatusUpdate) error
}

// DeliveryReporter updates per-message delivery state on a platform,
// including delivery-error signaling for failed forwards.
type DeliveryReporter interface {
	UpdateMessageStatus(ctx context.Context, messageID string, state DeliveryState, code ErrorCode, text string) error
	NotifyDeliveryError(ctx context.Context, messageID string, code ErrorCode, text string) error
}

// ChatCreator creates a chat entity on a platform. Chat creation is an
// optional capability: components that need it receive a ChatCreator at
// construction time, and a nil value means the platform does not support it.
type ChatCreator interface {
	CreateChat(ctx context.Context, req ChatRequest) (ChatResult, error)
}

// ContactDirectory resolves and updates CRM contacts bound to chats. Used by
// the post-send enrichment task to attach phone numbers to contacts.
type ContactDirectory interface {
	ContactIDByChatID(ctx context.Context, chatID string) (int64, error)
	UpdateContactPhone(ctx context.Context, contactID int64, phone string) error
}

// SourceProvider manages the chat-source catalog on the CRM side.
type SourceProvider interface {
	SourceByName(ctx context.Context, name string) (Source, bool, error)
	Sources(ctx context.Context) ([]Source, error)
	CreateSource(ctx context.Context, source Source) (Source, error)
}

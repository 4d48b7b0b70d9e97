// Package link owns the two identifier mappings the bridge persists: the
// conversation-to-conversation and message-to-message correspondences
// between edna and amoCRM.
package link

import (
	"context"
	"errors"

	"github.com/temaline/chatbridge/internal/bridge"
)

// ErrNotFound is returned when no link exists for the given key.
var ErrNotFound = errors.New("link not found")

// Store is the persistence contract for identity links. Every operation is
// individually atomic; there are no multi-row transactions across the two
// tables. Absence is reported as ErrNotFound.
type Store interface {
	// EdnaConversationID resolves the edna conversation linked to an amoCRM chat.
	EdnaConversationID(ctx context.Context, amoChatID string) (string, error)
	// AmoChatID resolves the amoCRM chat linked to an edna conversation
	// (reverse index, first match wins).
	AmoChatID(ctx context.Context, ednaConversationID string) (string, error)
	// Phone returns the phone attached to an amoCRM chat link.
	Phone(ctx context.Context, amoChatID string) (string, error)
	// ChatIDByPhone finds an amoCRM chat already associated with a phone.
	ChatIDByPhone(ctx context.Context, phone string) (string, error)
	// SaveConversationLink upserts a link keyed by its amoCRM chat id.
	SaveConversationLink(ctx context.Context, l bridge.ConversationLink) error
	// SavePhone attaches or overwrites the phone on an existing link row.
	SavePhone(ctx context.Context, amoChatID, phone string) error
	// MessageLink returns the link recorded for a source message id.
	MessageLink(ctx context.Context, sourceMessageID string) (bridge.MessageLink, error)
	// SaveMessageLink upserts a link keyed by its source message id.
	SaveMessageLink(ctx context.Context, l bridge.MessageLink) error
}

// Package bridge defines the canonical, platform-neutral message model and
// the provider contracts shared by the edna and amoCRM sides of the relay.
package bridge

import (
	"strings"
	"time"
)

// Provider identifies one of the two bridged messaging platforms.
type Provider string

const (
	ProviderEdna   Provider = "edna"
	ProviderAmoCRM Provider = "amocrm"
)

// String returns the provider name as a plain string.
func (p Provider) String() string {
	return string(p)
}

// Direction classifies a message relative to the CRM: inbound messages travel
// from a client toward amoCRM, outbound messages from an agent toward edna.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ContentType classifies the payload carried by a message.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentFile  ContentType = "file"
)

// Status is the canonical delivery status vocabulary.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Role identifies which side of the conversation a participant is on.
type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
)

// Attachment describes a binary payload referenced by URL.
type Attachment struct {
	URL       string
	MimeType  string
	Filename  string
	SizeBytes int64
}

// Participant is a message sender or recipient as known to its platform.
type Participant struct {
	ExternalUserID string
	Role           Role
	DisplayName    string
}

// Message is the canonical representation of a single chat message crossing
// the bridge. It is built once per inbound webhook event and discarded after
// the routing attempt; only TargetConversationID and the recipient id are
// filled in during routing.
type Message struct {
	ID                   string
	Direction            Direction
	ContentType          ContentType
	Text                 string
	Attachment           *Attachment
	SourceProvider       Provider
	SourceConversationID string
	SourceMessageID      string
	TargetProvider       Provider
	TargetConversationID string
	Sender               Participant
	Recipient            Participant
	SentAt               time.Time
}

// SendResult is the reference a platform returns after accepting a message.
type SendResult struct {
	Provider       Provider
	ConversationID string
	MessageID      string
}

// StatusUpdate is a canonical delivery/read status event.
type StatusUpdate struct {
	Provider       Provider
	ConversationID string
	MessageID      string
	Status         Status
	OccurredAt     time.Time
}

// ConversationLink records the correspondence between an amoCRM chat and an
// edna conversation. AmoChatID is the primary key; Phone is attached once
// known and used to address the edna side on later replies.
type ConversationLink struct {
	AmoChatID          string
	EdnaConversationID string
	Phone              string
}

// MessageLink records which message id the target platform assigned when a
// source message was forwarded. Keyed by SourceMessageID; written exactly
// once per successful send (idempotent upsert).
type MessageLink struct {
	SourceProvider       Provider
	SourceMessageID      string
	TargetProvider       Provider
	TargetMessageID      string
	TargetConversationID string
}

// ChatUserProfile carries the contact details attached to a chat user.
type ChatUserProfile struct {
	Phone string
	Email string
}

// ChatUser identifies the client participant when creating a chat.
type ChatUser struct {
	ID      string
	Name    string
	RefID   string
	Avatar  string
	Profile *ChatUserProfile
}

// ChatSource tags a created chat with the catalog source it belongs to.
type ChatSource struct {
	ExternalID string
}

// ChatRequest is the input for creating a chat on a platform that supports
// chat creation.
type ChatRequest struct {
	ConversationID string
	User           ChatUser
	Source         *ChatSource
}

// ChatResult is the outcome of a chat creation call.
type ChatResult struct {
	ID             string
	ConversationID string
	User           ChatUser
}

// Source is an amoCRM chat-source catalog entity. Chats created by the
// bridge are tagged with one so the CRM can attribute incoming leads.
type Source struct {
	ID         int64
	Name       string
	ExternalID string
	PipelineID int64
	OriginCode string
	Default    bool
}

// PhoneShaped reports whether value looks like a phone number: an optional
// leading plus followed by at least seven digits.
func PhoneShaped(value string) bool {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "+")
	if len(value) < 7 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Package edna integrates the edna IM aggregation gateway: the outbound send
// client, the inbound webhook payload types, and their mapping onto the
// canonical bridge model.
package edna

import "time"

// Subscriber identifies the external IM user behind a conversation.
type Subscriber struct {
	ID         int64  `json:"id"`
	Identifier string `json:"identifier"`
}

// UserInfo carries optional profile data about the subscriber.
type UserInfo struct {
	UserName  string `json:"userName,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Attachment is a binary payload reference inside a message.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// MessageContent is the typed body of an incoming message.
type MessageContent struct {
	Type       string      `json:"type"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Text       string      `json:"text,omitempty"`
	Caption    string      `json:"caption,omitempty"`
}

// IncomingMessage is the in-message webhook payload.
type IncomingMessage struct {
	ID                int64          `json:"id"`
	Subject           string         `json:"subject"`
	SubjectID         int64          `json:"subjectId"`
	Subscriber        Subscriber     `json:"subscriber"`
	UserInfo          UserInfo       `json:"userInfo"`
	MessageContent    MessageContent `json:"messageContent"`
	ReceivedAt        time.Time      `json:"receivedAt"`
	ReplyOutMessageID string         `json:"replyOutMessageId,omitempty"`
	ReplyInMessageID  string         `json:"replyInMessageId,omitempty"`
}

// StatusUpdate is the cascade status webhook payload. RequestID is the id
// the bridge supplied when it sent the message, which makes it the key for
// the message-link lookup.
type StatusUpdate struct {
	RequestID        string    `json:"requestId"`
	MessageID        int64     `json:"messageId"`
	CascadeID        int64     `json:"cascadeId"`
	CascadeStageUUID string    `json:"cascadeStageUUID"`
	Subject          string    `json:"subject"`
	SubjectID        int64     `json:"subjectId"`
	Status           string    `json:"status"`
	StatusAt         time.Time `json:"statusAt"`
	Error            string    `json:"error,omitempty"`
}

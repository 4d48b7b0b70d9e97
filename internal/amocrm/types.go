// Package amocrm integrates the amoCRM chat-channel (amojo) and REST v4
// APIs: outbound send with request signing, chat creation, delivery-status
// reporting, contact lookups, and the chat-source catalog.
package amocrm

// WebhookMessage is the message block of an outgoing-message webhook.
type WebhookMessage struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Media     string `json:"media,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	Timestamp int64  `json:"date"`
}

// WebhookSender identifies the CRM agent who wrote the message.
type WebhookSender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WebhookConversation identifies the amoCRM chat the message belongs to.
type WebhookConversation struct {
	ID string `json:"id"`
}

// WebhookAccount identifies the amoCRM account emitting the webhook.
type WebhookAccount struct {
	ID        string `json:"id"`
	Subdomain string `json:"subdomain"`
}

// IncomingWebhook is the payload amoCRM posts when an agent sends a message
// through the bridged channel.
type IncomingWebhook struct {
	Message      WebhookMessage      `json:"message"`
	Sender       WebhookSender       `json:"sender"`
	Conversation WebhookConversation `json:"conversation"`
	Account      WebhookAccount      `json:"account"`
}

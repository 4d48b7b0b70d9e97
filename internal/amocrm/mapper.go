package amocrm

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/temaline/chatbridge/internal/bridge"
)

// MessageToDomain maps an agent-authored amoCRM webhook to the canonical
// model. The recipient identity is left empty; the router fills it from the
// stored conversation link (or phone) before sending.
func MessageToDomain(payload IncomingWebhook) *bridge.Message {
	contentType := bridge.ContentText
	var attachment *bridge.Attachment
	if payload.Message.Media != "" {
		contentType = bridge.ContentFile
		if strings.Contains(payload.Message.MimeType, "image") {
			contentType = bridge.ContentImage
		}
		attachment = &bridge.Attachment{
			URL:       payload.Message.Media,
			MimeType:  payload.Message.MimeType,
			Filename:  payload.Message.FileName,
			SizeBytes: payload.Message.FileSize,
		}
	}

	sentAt := time.Now()
	if payload.Message.Timestamp > 0 {
		sentAt = time.Unix(payload.Message.Timestamp, 0)
	}

	return &bridge.Message{
		ID:                   uuid.NewString(),
		Direction:            bridge.DirectionOutbound,
		ContentType:          contentType,
		Text:                 payload.Message.Text,
		Attachment:           attachment,
		SourceProvider:       bridge.ProviderAmoCRM,
		SourceConversationID: payload.Conversation.ID,
		SourceMessageID:      payload.Message.ID,
		TargetProvider:       bridge.ProviderEdna,
		SentAt:               sentAt,
		Sender: bridge.Participant{
			ExternalUserID: payload.Sender.ID,
			Role:           bridge.RoleAgent,
			DisplayName:    payload.Sender.Name,
		},
		Recipient: bridge.Participant{
			Role: bridge.RoleClient,
		},
	}
}

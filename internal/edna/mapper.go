package edna

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/temaline/chatbridge/internal/bridge"
)

// MessageToDomain maps an incoming edna message to the canonical model.
// Pure translation, no side effects: the recipient and target conversation
// are resolved later by the router.
func MessageToDomain(payload IncomingMessage) *bridge.Message {
	contentType := bridge.ContentText
	var attachment *bridge.Attachment
	if att := payload.MessageContent.Attachment; att != nil {
		contentType = bridge.ContentFile
		if strings.Contains(att.MimeType, "image") {
			contentType = bridge.ContentImage
		}
		attachment = &bridge.Attachment{
			URL:       att.URL,
			MimeType:  att.MimeType,
			Filename:  att.Name,
			SizeBytes: att.Size,
		}
	}

	sentAt := payload.ReceivedAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	return &bridge.Message{
		ID:                   uuid.NewString(),
		Direction:            bridge.DirectionInbound,
		ContentType:          contentType,
		Text:                 payload.MessageContent.Text,
		Attachment:           attachment,
		SourceProvider:       bridge.ProviderEdna,
		SourceConversationID: payload.Subject,
		SourceMessageID:      strconv.FormatInt(payload.ID, 10),
		TargetProvider:       bridge.ProviderAmoCRM,
		SentAt:               sentAt,
		Sender: bridge.Participant{
			ExternalUserID: payload.Subject,
			Role:           bridge.RoleClient,
			DisplayName:    displayName(payload.UserInfo),
		},
		Recipient: bridge.Participant{
			Role: bridge.RoleAgent,
		},
	}
}

// StatusToDomain maps a cascade status update to the canonical vocabulary.
// Unknown statuses degrade to "sent".
func StatusToDomain(payload StatusUpdate) bridge.StatusUpdate {
	status := bridge.StatusSent
	switch strings.ToLower(payload.Status) {
	case "delivered":
		status = bridge.StatusDelivered
	case "read":
		status = bridge.StatusRead
	}

	occurredAt := payload.StatusAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	return bridge.StatusUpdate{
		Provider:   bridge.ProviderEdna,
		MessageID:  payload.RequestID,
		Status:     status,
		OccurredAt: occurredAt,
	}
}

func displayName(info UserInfo) string {
	full := strings.TrimSpace(strings.TrimSpace(info.FirstName) + " " + strings.TrimSpace(info.LastName))
	if full != "" {
		return full
	}
	return strings.TrimSpace(info.UserName)
}

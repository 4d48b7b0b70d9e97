package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/temaline/chatbridge/internal/amocrm"
	"github.com/temaline/chatbridge/internal/bridge"
	"github.com/temaline/chatbridge/internal/edna"
	"github.com/temaline/chatbridge/internal/link"
)

// EdnaRouter forwards client messages from edna into amoCRM. A conversation
// without a stored link gets a chat provisioned first; the link is committed
// only after the send succeeds, so a provisioned-but-undelivered chat leaves
// no trace in the store.
type EdnaRouter struct {
	logger      *slog.Logger
	store       link.Store
	sender      bridge.Sender
	provisioner *Provisioner
	contacts    bridge.ContactDirectory
	tasks       Runner
	enrichDelay time.Duration
}

func NewEdnaRouter(
	log *slog.Logger,
	store link.Store,
	sender bridge.Sender,
	provisioner *Provisioner,
	contacts bridge.ContactDirectory,
	tasks Runner,
	enrichDelay time.Duration,
) *EdnaRouter {
	if log == nil {
		log = slog.Default()
	}
	return &EdnaRouter{
		logger:      log.With(slog.String("component", "edna_router")),
		store:       store,
		sender:      sender,
		provisioner: provisioner,
		contacts:    contacts,
		tasks:       tasks,
		enrichDelay: enrichDelay,
	}
}

// Route maps an edna webhook message and forwards it to amoCRM.
func (r *EdnaRouter) Route(ctx context.Context, payload edna.IncomingMessage) error {
	msg := edna.MessageToDomain(payload)
	log := r.logger.With(
		slog.String("conversation_id", msg.SourceConversationID),
		slog.String("message_id", msg.SourceMessageID))

	chatID, err := r.store.AmoChatID(ctx, msg.SourceConversationID)
	if err != nil && !errors.Is(err, link.ErrNotFound) {
		log.Warn("conversation link lookup failed, treating as unlinked", slog.Any("error", err))
		chatID = ""
	}
	linked := chatID != ""

	var provisioned ProvisionResult
	if !linked {
		if r.provisioner == nil {
			return fmt.Errorf("no amoCRM chat linked to conversation %s and provisioning is disabled", msg.SourceConversationID)
		}
		provisioned, err = r.provisioner.EnsureChat(ctx, msg.SourceConversationID, msg.Sender)
		if err != nil {
			return fmt.Errorf("provision chat for conversation %s: %w", msg.SourceConversationID, err)
		}
		chatID = provisioned.ChatID
	}
	msg.TargetConversationID = chatID

	result, err := r.sender.SendMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("forward message %s to amoCRM: %w", msg.SourceMessageID, err)
	}

	r.commit(ctx, log, msg, result, linked, provisioned)
	r.scheduleEnrichment(log, resolvedChatID(result, chatID), msg.Sender.ExternalUserID)
	return nil
}

// commit records the message link and, for a first message, the conversation
// link. Store failures after a successful send are logged and not rolled
// back; the message has already been delivered.
func (r *EdnaRouter) commit(ctx context.Context, log *slog.Logger, msg *bridge.Message, result bridge.SendResult, linked bool, provisioned ProvisionResult) {
	if err := r.store.SaveMessageLink(ctx, bridge.MessageLink{
		SourceProvider:       bridge.ProviderEdna,
		SourceMessageID:      msg.SourceMessageID,
		TargetProvider:       bridge.ProviderAmoCRM,
		TargetMessageID:      result.MessageID,
		TargetConversationID: resolvedChatID(result, msg.TargetConversationID),
	}); err != nil {
		log.Error("save message link failed", slog.Any("error", err))
	}
	if linked {
		return
	}
	if err := r.store.SaveConversationLink(ctx, bridge.ConversationLink{
		AmoChatID:          resolvedChatID(result, msg.TargetConversationID),
		EdnaConversationID: msg.SourceConversationID,
		Phone:              provisioned.Phone,
	}); err != nil {
		log.Error("save conversation link failed", slog.Any("error", err))
	}
}

// scheduleEnrichment attaches the client's phone to the amoCRM contact bound
// to the chat. amoCRM binds the contact asynchronously after the first
// message, hence the delay before the lookup.
func (r *EdnaRouter) scheduleEnrichment(log *slog.Logger, chatID, phone string) {
	if r.contacts == nil || r.tasks == nil || !bridge.PhoneShaped(phone) {
		return
	}
	delay := r.enrichDelay
	r.tasks.Run("contact enrichment", func(taskCtx context.Context) {
		if delay > 0 {
			time.Sleep(delay)
		}
		contactID, err := r.contacts.ContactIDByChatID(taskCtx, chatID)
		if err != nil {
			log.Warn("contact lookup for enrichment failed", slog.String("chat_id", chatID), slog.Any("error", err))
			return
		}
		if contactID == 0 {
			log.Debug("no contact bound to chat yet, skipping enrichment", slog.String("chat_id", chatID))
			return
		}
		if err := r.contacts.UpdateContactPhone(taskCtx, contactID, phone); err != nil {
			log.Warn("contact phone update failed", slog.Int64("contact_id", contactID), slog.Any("error", err))
		}
	})
}

func resolvedChatID(result bridge.SendResult, fallback string) string {
	if result.ConversationID != "" {
		return result.ConversationID
	}
	return fallback
}

// AmoRouter forwards agent messages from amoCRM into edna. There is no
// provisioning in this direction: an unlinked chat is addressed with the amo
// chat id itself as the placeholder target. Send failures are pushed back to
// amoCRM as delivery errors so the agent sees the message marked undelivered.
type AmoRouter struct {
	logger   *slog.Logger
	store    link.Store
	sender   bridge.Sender
	reporter bridge.DeliveryReporter
	tasks    Runner
}

func NewAmoRouter(
	log *slog.Logger,
	store link.Store,
	sender bridge.Sender,
	reporter bridge.DeliveryReporter,
	tasks Runner,
) *AmoRouter {
	if log == nil {
		log = slog.Default()
	}
	return &AmoRouter{
		logger:   log.With(slog.String("component", "amo_router")),
		store:    store,
		sender:   sender,
		reporter: reporter,
		tasks:    tasks,
	}
}

// Route maps an amoCRM webhook message and forwards it to edna.
func (r *AmoRouter) Route(ctx context.Context, payload amocrm.IncomingWebhook) error {
	msg := amocrm.MessageToDomain(payload)
	log := r.logger.With(
		slog.String("chat_id", msg.SourceConversationID),
		slog.String("message_id", msg.SourceMessageID))

	target, err := r.store.EdnaConversationID(ctx, msg.SourceConversationID)
	if err != nil && !errors.Is(err, link.ErrNotFound) {
		log.Warn("conversation link lookup failed, treating as unlinked", slog.Any("error", err))
		target = ""
	}
	linked := target != ""
	if !linked {
		target = msg.SourceConversationID
	}
	msg.TargetConversationID = target

	// A stored phone beats whatever the payload carried.
	phone, perr := r.store.Phone(ctx, msg.SourceConversationID)
	switch {
	case perr == nil && phone != "":
		msg.Recipient.ExternalUserID = phone
	case msg.Recipient.ExternalUserID == "":
		msg.Recipient.ExternalUserID = target
	}

	result, err := r.sender.SendMessage(ctx, msg)
	if err != nil {
		r.signalDeliveryError(log, msg.SourceMessageID, err)
		return fmt.Errorf("forward message %s to edna: %w", msg.SourceMessageID, err)
	}

	r.commit(ctx, log, msg, result, linked)
	return nil
}

func (r *AmoRouter) commit(ctx context.Context, log *slog.Logger, msg *bridge.Message, result bridge.SendResult, linked bool) {
	if err := r.store.SaveMessageLink(ctx, bridge.MessageLink{
		SourceProvider:       bridge.ProviderAmoCRM,
		SourceMessageID:      msg.SourceMessageID,
		TargetProvider:       bridge.ProviderEdna,
		TargetMessageID:      result.MessageID,
		TargetConversationID: msg.TargetConversationID,
	}); err != nil {
		log.Error("save message link failed", slog.Any("error", err))
	}
	if !linked {
		ednaConversationID := result.ConversationID
		if ednaConversationID == "" {
			ednaConversationID = msg.TargetConversationID
		}
		if err := r.store.SaveConversationLink(ctx, bridge.ConversationLink{
			AmoChatID:          msg.SourceConversationID,
			EdnaConversationID: ednaConversationID,
		}); err != nil {
			log.Error("save conversation link failed", slog.Any("error", err))
		}
	}
	if bridge.PhoneShaped(msg.Recipient.ExternalUserID) {
		if err := r.store.SavePhone(ctx, msg.SourceConversationID, msg.Recipient.ExternalUserID); err != nil {
			log.Warn("save phone failed", slog.Any("error", err))
		}
	}
}

// signalDeliveryError tells amoCRM the agent's message did not reach the
// client. Best effort and detached: the webhook is acked regardless, and a
// reporting failure is only visible in logs.
func (r *AmoRouter) signalDeliveryError(log *slog.Logger, messageID string, sendErr error) {
	if r.reporter == nil || r.tasks == nil {
		return
	}
	code := ClassifyDeliveryError(sendErr)
	r.tasks.Run("notify delivery error", func(taskCtx context.Context) {
		if err := r.reporter.NotifyDeliveryError(taskCtx, messageID, code, ""); err != nil {
			log.Warn("delivery error notification failed",
				slog.String("message_id", messageID),
				slog.Int("code", int(code)),
				slog.Any("error", err))
		}
	})
}

package route

import (
	"context"
	"errors"
	"log/slog"

	"github.com/temaline/chatbridge/internal/bridge"
	"github.com/temaline/chatbridge/internal/edna"
	"github.com/temaline/chatbridge/internal/link"
)

// messageLinkReader is the slice of the link store the status router needs.
type messageLinkReader interface {
	MessageLink(ctx context.Context, sourceMessageID string) (bridge.MessageLink, error)
}

// StatusRouter propagates edna delivery statuses onto the amoCRM messages
// they refer to. Statuses for messages the bridge never forwarded are
// dropped; "sent" has no amoCRM representation and is not propagated.
type StatusRouter struct {
	logger   *slog.Logger
	store    messageLinkReader
	reporter bridge.DeliveryReporter
}

func NewStatusRouter(log *slog.Logger, store messageLinkReader, reporter bridge.DeliveryReporter) *StatusRouter {
	if log == nil {
		log = slog.Default()
	}
	return &StatusRouter{
		logger:   log.With(slog.String("component", "status_router")),
		store:    store,
		reporter: reporter,
	}
}

// Route resolves the target-side message for an edna status update and
// reports the delivery state to amoCRM.
func (r *StatusRouter) Route(ctx context.Context, payload edna.StatusUpdate) error {
	update := edna.StatusToDomain(payload)
	log := r.logger.With(
		slog.String("message_id", update.MessageID),
		slog.String("status", string(update.Status)))

	ml, err := r.store.MessageLink(ctx, update.MessageID)
	if err != nil {
		if errors.Is(err, link.ErrNotFound) {
			log.Debug("status for unknown message, dropping")
		} else {
			log.Warn("message link lookup failed, dropping status", slog.Any("error", err))
		}
		return nil
	}
	if ml.TargetProvider != bridge.ProviderAmoCRM {
		return nil
	}

	var state bridge.DeliveryState
	switch update.Status {
	case bridge.StatusDelivered:
		state = bridge.DeliveryDelivered
	case bridge.StatusRead:
		state = bridge.DeliveryRead
	default:
		return nil
	}

	if err := r.reporter.UpdateMessageStatus(ctx, ml.TargetMessageID, state, 0, ""); err != nil {
		log.Warn("delivery status update failed",
			slog.String("target_message_id", ml.TargetMessageID),
			slog.Any("error", err))
	}
	return nil
}

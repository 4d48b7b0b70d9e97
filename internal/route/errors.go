package route

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/temaline/chatbridge/internal/bridge"
)

// ErrCannotCreateChat marks a provisioning failure so that routing errors
// can be reported to amoCRM with the dedicated delivery-error code.
var ErrCannotCreateChat = errors.New("cannot create chat")

// ClassifyDeliveryError maps a forwarding failure to one of the fixed
// amoCRM delivery-error codes. Network trouble and anything unrecognized
// fall through to the unknown code.
func ClassifyDeliveryError(err error) bridge.ErrorCode {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrCannotCreateChat) {
		return bridge.ErrCodeCannotCreateChat
	}

	var reqErr *bridge.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.StatusCode == http.StatusUnauthorized || reqErr.StatusCode == http.StatusForbidden:
			return bridge.ErrCodeChannelDisabled
		case reqErr.StatusCode == http.StatusNotFound:
			return bridge.ErrCodeChatDeleted
		case reqErr.StatusCode >= http.StatusInternalServerError:
			return bridge.ErrCodeInternal
		default:
			return bridge.ErrCodeUnknown
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return bridge.ErrCodeUnknown
	}
	return bridge.ErrCodeUnknown
}

package amocrm

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/temaline/chatbridge/internal/bridge"
	"github.com/temaline/chatbridge/internal/config"
)

const requestTimeout = 10 * time.Second

// deliveryErrorText supplies the default human-readable text amoCRM shows
// next to a delivery error code.
var deliveryErrorText = map[bridge.ErrorCode]string{
	bridge.ErrCodeChatDeleted:      "User deleted the chat",
	bridge.ErrCodeChannelDisabled:  "Integration disabled on the channel side",
	bridge.ErrCodeInternal:         "Internal server error",
	bridge.ErrCodeCannotCreateChat: "Cannot create chat",
	bridge.ErrCodeUnknown:          "Unknown delivery error",
}

// AmojoClient talks to the amoCRM chat-channel (amojo) API. Every request is
// signed with the channel secret: HMAC-SHA1 over method, body MD5, content
// type, date, and path.
type AmojoClient struct {
	logger           *slog.Logger
	http             *http.Client
	baseURL          string
	channelID        string
	accountID        string
	connectTitle     string
	hookAPIVersion   string
	secret           []byte
	sourceExternalID string

	mu      sync.Mutex
	scopeID string
}

// NewAmojoClient creates an amojo client from config.
func NewAmojoClient(log *slog.Logger, cfg config.AmoCRMConfig) *AmojoClient {
	if log == nil {
		log = slog.Default()
	}
	return &AmojoClient{
		logger:           log.With(slog.String("client", "amojo")),
		http:             &http.Client{Timeout: requestTimeout},
		baseURL:          strings.TrimRight(cfg.AmojoBaseURL, "/"),
		channelID:        cfg.ChannelID,
		accountID:        cfg.AccountID,
		connectTitle:     cfg.ConnectTitle,
		hookAPIVersion:   cfg.HookAPIVersion,
		secret:           []byte(cfg.ChannelSecret),
		sourceExternalID: cfg.SourceExternalID,
		scopeID:          cfg.ScopeID,
	}
}

// EnsureReady connects the channel to the account and obtains the scope id
// used in all subsequent request paths. Safe to call more than once.
func (c *AmojoClient) EnsureReady(ctx context.Context) error {
	_, err := c.ensureScopeID(ctx)
	return err
}

func (c *AmojoClient) ensureScopeID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scopeID != "" {
		return c.scopeID, nil
	}
	if c.channelID == "" || c.accountID == "" {
		return "", errors.New("channel_id and account_id are required to obtain scope_id")
	}
	path := fmt.Sprintf("/v2/origin/custom/%s/connect", c.channelID)
	data, err := c.post(ctx, path, map[string]any{
		"account_id":       c.accountID,
		"title":            c.connectTitle,
		"hook_api_version": c.hookAPIVersion,
	})
	if err != nil {
		return "", fmt.Errorf("amojo connect: %w", err)
	}
	scope, _ := data["scope_id"].(string)
	if scope == "" {
		scope = c.channelID + "_" + c.accountID
	}
	c.scopeID = scope
	c.logger.Info("obtained amojo scope id", slog.String("scope_id", scope))
	return scope, nil
}

// SendMessage delivers a canonical message into the amoCRM chat identified
// by the target conversation id, tagging it with the configured chat source.
func (c *AmojoClient) SendMessage(ctx context.Context, msg *bridge.Message) (bridge.SendResult, error) {
	scope, err := c.ensureScopeID(ctx)
	if err != nil {
		return bridge.SendResult{}, err
	}
	conversationID := msg.TargetConversationID
	if conversationID == "" {
		conversationID = msg.SourceConversationID
	}
	if conversationID == "" {
		return bridge.SendResult{}, errors.New("conversation id is required to send message to amoCRM")
	}

	messageObj := map[string]any{"type": "text", "text": msg.Text}
	if att := msg.Attachment; att != nil {
		wireType := "file"
		if msg.ContentType == bridge.ContentImage {
			wireType = "picture"
		}
		messageObj = map[string]any{"type": wireType, "media": att.URL}
		if att.Filename != "" {
			messageObj["file_name"] = att.Filename
		}
		if att.SizeBytes > 0 {
			messageObj["file_size"] = att.SizeBytes
		}
	}

	inner := map[string]any{
		"timestamp":       time.Now().UTC().Unix(),
		"conversation_id": conversationID,
		"sender": map[string]any{
			"id":   msg.Sender.ExternalUserID,
			"name": msg.Sender.DisplayName,
		},
		"message": messageObj,
		"msgid":   msg.SourceMessageID,
	}
	if c.sourceExternalID != "" {
		inner["source"] = map[string]any{"external_id": c.sourceExternalID}
	}
	payload := map[string]any{
		"event_type": "new_message",
		"payload":    inner,
	}

	data, err := c.post(ctx, "/v2/origin/custom/"+scope, payload)
	if err != nil {
		return bridge.SendResult{}, err
	}

	returnedConversation := conversationID
	returnedMessage := msg.SourceMessageID
	if nested, ok := data["new_message"].(map[string]any); ok {
		if v, ok := nested["conversation_id"].(string); ok && v != "" {
			returnedConversation = v
		}
		if v, ok := nested["msgid"].(string); ok && v != "" {
			returnedMessage = v
		}
	}
	if v, ok := data["conversation_id"].(string); ok && v != "" {
		returnedConversation = v
	}
	if v, ok := data["message_id"].(string); ok && v != "" {
		returnedMessage = v
	}

	return bridge.SendResult{
		Provider:       bridge.ProviderAmoCRM,
		ConversationID: returnedConversation,
		MessageID:      returnedMessage,
	}, nil
}

// NotifyStatus pushes a delivered/read status onto the amoCRM message.
// "sent" has no amojo representation and is skipped.
func (c *AmojoClient) NotifyStatus(ctx context.Context, status bridge.StatusUpdate) error {
	var state bridge.DeliveryState
	switch status.Status {
	case bridge.StatusDelivered:
		state = bridge.DeliveryDelivered
	case bridge.StatusRead:
		state = bridge.DeliveryRead
	default:
		return nil
	}
	return c.UpdateMessageStatus(ctx, status.MessageID, state, 0, "")
}

// UpdateMessageStatus reports a delivery state transition for a message the
// bridge previously pushed into amoCRM.
func (c *AmojoClient) UpdateMessageStatus(ctx context.Context, messageID string, state bridge.DeliveryState, code bridge.ErrorCode, text string) error {
	scope, err := c.ensureScopeID(ctx)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"msgid":           messageID,
		"delivery_status": int(state),
	}
	if state == bridge.DeliveryError {
		if code == 0 {
			code = bridge.ErrCodeUnknown
		}
		if text == "" {
			text = deliveryErrorText[code]
		}
		payload["error_code"] = int(code)
		payload["error"] = text
	}
	path := fmt.Sprintf("/v2/origin/custom/%s/%s/delivery_status", scope, messageID)
	if _, err := c.post(ctx, path, payload); err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	return nil
}

// NotifyDeliveryError marks a message as failed with one of the fixed
// delivery-error codes.
func (c *AmojoClient) NotifyDeliveryError(ctx context.Context, messageID string, code bridge.ErrorCode, text string) error {
	return c.UpdateMessageStatus(ctx, messageID, bridge.DeliveryError, code, text)
}

// CreateChat creates a chat entity for a client ahead of the first message.
func (c *AmojoClient) CreateChat(ctx context.Context, req bridge.ChatRequest) (bridge.ChatResult, error) {
	scope, err := c.ensureScopeID(ctx)
	if err != nil {
		return bridge.ChatResult{}, err
	}

	user := map[string]any{
		"id":   req.User.ID,
		"name": req.User.Name,
	}
	if req.User.RefID != "" {
		user["ref_id"] = req.User.RefID
	}
	if req.User.Avatar != "" {
		user["avatar"] = req.User.Avatar
	}
	if profile := req.User.Profile; profile != nil {
		p := map[string]any{}
		if profile.Phone != "" {
			p["phone"] = profile.Phone
		}
		if profile.Email != "" {
			p["email"] = profile.Email
		}
		user["profile"] = p
	}
	payload := map[string]any{
		"conversation_id": req.ConversationID,
		"user":            user,
	}
	if req.Source != nil {
		payload["source"] = map[string]any{"external_id": req.Source.ExternalID}
	}

	data, err := c.post(ctx, "/v2/origin/custom/"+scope+"/chats", payload)
	if err != nil {
		return bridge.ChatResult{}, fmt.Errorf("create chat: %w", err)
	}

	id, _ := data["id"].(string)
	if id == "" {
		return bridge.ChatResult{}, errors.New("create chat: response has no chat id")
	}
	result := bridge.ChatResult{
		ID:             id,
		ConversationID: req.ConversationID,
		User:           req.User,
	}
	if userData, ok := data["user"].(map[string]any); ok {
		if v, ok := userData["id"].(string); ok && v != "" {
			result.User.ID = v
		}
		if v, ok := userData["name"].(string); ok && v != "" {
			result.User.Name = v
		}
	}
	c.logger.Info("created amoCRM chat",
		slog.String("chat_id", result.ID),
		slog.String("conversation_id", req.ConversationID))
	return result, nil
}

func (c *AmojoClient) sign(method, contentMD5, contentType, date, path string) string {
	canonical := strings.Join([]string{strings.ToUpper(method), contentMD5, contentType, date, path}, "\n")
	mac := hmac.New(sha1.New, c.secret)
	mac.Write([]byte(canonical))
	return strings.ToLower(hex.EncodeToString(mac.Sum(nil)))
}

func (c *AmojoClient) post(ctx context.Context, path string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	sum := md5.Sum(body)
	contentMD5 := strings.ToLower(hex.EncodeToString(sum[:]))
	contentType := "application/json"
	date := time.Now().UTC().Format(http.TimeFormat)
	signature := c.sign(http.MethodPost, contentMD5, contentType, date, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Date", date)
	req.Header.Set("Content-MD5", contentMD5)
	req.Header.Set("X-Signature", signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("amojo request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("amojo response", slog.String("path", path), slog.Int("status", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &bridge.RequestError{
			Provider:   bridge.ProviderAmoCRM,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	data := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return data, nil
}

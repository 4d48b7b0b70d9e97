package edna

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/temaline/chatbridge/internal/bridge"
	"github.com/temaline/chatbridge/internal/config"
)

const requestTimeout = 10 * time.Second

// Client talks to the edna gateway API. It authenticates with a static API
// key and addresses recipients by their IM subject (usually a phone number).
type Client struct {
	logger       *slog.Logger
	http         *http.Client
	baseURL      string
	apiKey       string
	imType       string
	sendPath     string
	callbackPath string
	subjectID    int64
	statusCB     string
	inMessageCB  string
	matcherCB    string
}

// NewClient creates an edna client from config.
func NewClient(log *slog.Logger, cfg config.EdnaConfig) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		logger:       log.With(slog.String("client", "edna")),
		http:         &http.Client{Timeout: requestTimeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		imType:       cfg.IMType,
		sendPath:     cfg.SendPath,
		callbackPath: cfg.CallbackPath,
		subjectID:    cfg.SubjectID,
		statusCB:     cfg.StatusCallbackURL,
		inMessageCB:  cfg.InMessageCallbackURL,
		matcherCB:    cfg.MatcherCallbackURL,
	}
}

// EnsureReady registers the configured webhook callbacks with edna. Called
// once at startup; a client without callback config is a no-op.
func (c *Client) EnsureReady(ctx context.Context) error {
	if c.subjectID == 0 || (c.statusCB == "" && c.inMessageCB == "" && c.matcherCB == "") {
		return nil
	}
	return c.SetCallbacks(ctx, c.subjectID, c.statusCB, c.inMessageCB, c.matcherCB)
}

// SetCallbacks points edna's status / in-message / matcher webhooks at the
// given URLs for the subject.
func (c *Client) SetCallbacks(ctx context.Context, subjectID int64, statusURL, inMessageURL, matcherURL string) error {
	body := map[string]any{"subjectId": subjectID}
	if statusURL != "" {
		body["statusCallbackUrl"] = statusURL
	}
	if inMessageURL != "" {
		body["inMessageCallbackUrl"] = inMessageURL
	}
	if matcherURL != "" {
		body["messageMatcherCallbackUrl"] = matcherURL
	}
	c.logger.Info("registering edna callbacks", slog.Int64("subject_id", subjectID))
	_, err := c.post(ctx, c.callbackPath, body)
	return err
}

// SendMessage forwards a canonical message to the edna subject. The subject
// is the resolved recipient identity, falling back to the target
// conversation id.
func (c *Client) SendMessage(ctx context.Context, msg *bridge.Message) (bridge.SendResult, error) {
	subject := msg.Recipient.ExternalUserID
	if subject == "" {
		subject = msg.TargetConversationID
	}
	payload := map[string]any{
		"imType":  c.imType,
		"subject": subject,
	}
	if msg.Text != "" {
		payload["text"] = msg.Text
	}
	if att := msg.Attachment; att != nil {
		attachment := map[string]any{"url": att.URL}
		if att.MimeType != "" {
			attachment["mimeType"] = att.MimeType
		}
		if att.Filename != "" {
			attachment["name"] = att.Filename
		}
		if att.SizeBytes > 0 {
			attachment["size"] = att.SizeBytes
		}
		payload["attachment"] = attachment
	}

	data, err := c.post(ctx, c.sendPath, payload)
	if err != nil {
		return bridge.SendResult{}, err
	}

	messageID := firstString(data, "id", "messageId", "message_id")
	if messageID == "" {
		messageID = msg.SourceMessageID
	}
	conversationID := msg.TargetConversationID
	if conversationID == "" {
		conversationID = subject
	}
	return bridge.SendResult{
		Provider:       bridge.ProviderEdna,
		ConversationID: conversationID,
		MessageID:      messageID,
	}, nil
}

// NotifyStatus is a no-op: edna has no API for pushing per-message read
// state back into the channel.
func (c *Client) NotifyStatus(ctx context.Context, status bridge.StatusUpdate) error {
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edna request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("edna response", slog.String("path", path), slog.Int("status", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &bridge.RequestError{
			Provider:   bridge.ProviderEdna,
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

func firstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := data[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

package amocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/temaline/chatbridge/internal/bridge"
	"github.com/temaline/chatbridge/internal/config"
)

// RestClient talks to the amoCRM REST v4 API with a long-lived bearer token.
// The bridge uses it to bind phone numbers to the contacts amoCRM creates
// behind bridged chats.
type RestClient struct {
	logger  *slog.Logger
	http    *http.Client
	baseURL string
	token   string
}

// NewRestClient creates a REST v4 client from config.
func NewRestClient(log *slog.Logger, cfg config.AmoCRMConfig) *RestClient {
	if log == nil {
		log = slog.Default()
	}
	return &RestClient{
		logger:  log.With(slog.String("client", "amocrm_rest")),
		http:    &http.Client{Timeout: requestTimeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
	}
}

// ContactIDByChatID resolves the CRM contact bound to a chat. Returns 0 when
// no contact is bound yet (eventual consistency after chat creation).
func (c *RestClient) ContactIDByChatID(ctx context.Context, chatID string) (int64, error) {
	query := url.Values{}
	query.Set("chat_id", chatID)
	data, err := c.do(ctx, http.MethodGet, "/api/v4/contacts/chats?"+query.Encode(), nil)
	if err != nil {
		return 0, err
	}

	embedded, _ := data["_embedded"].(map[string]any)
	chats, _ := embedded["chats"].([]any)
	if len(chats) == 0 {
		return 0, nil
	}
	first, _ := chats[0].(map[string]any)
	contactID, _ := first["contact_id"].(float64)
	return int64(contactID), nil
}

// UpdateContactPhone sets the work phone custom field on a contact.
func (c *RestClient) UpdateContactPhone(ctx context.Context, contactID int64, phone string) error {
	payload := []map[string]any{
		{
			"id": contactID,
			"custom_fields_values": []map[string]any{
				{
					"field_code": "PHONE",
					"values": []map[string]any{
						{"value": phone, "enum_code": "WORK"},
					},
				},
			},
		},
	}
	if _, err := c.do(ctx, http.MethodPatch, "/api/v4/contacts", payload); err != nil {
		return fmt.Errorf("update contact phone: %w", err)
	}
	c.logger.Info("updated contact phone",
		slog.Int64("contact_id", contactID),
		slog.String("phone", phone))
	return nil
}

func (c *RestClient) do(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("amocrm rest %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
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

package amocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/temaline/chatbridge/internal/bridge"
	"github.com/temaline/chatbridge/internal/config"
)

// SourceClient manages the amoCRM chat-source catalog over REST v4. Chats
// created by the bridge are tagged with a source so leads are attributed to
// the integration.
type SourceClient struct {
	logger  *slog.Logger
	http    *http.Client
	baseURL string
	token   string
}

// NewSourceClient creates a chat-source catalog client from config.
func NewSourceClient(log *slog.Logger, cfg config.AmoCRMConfig) *SourceClient {
	if log == nil {
		log = slog.Default()
	}
	return &SourceClient{
		logger:  log.With(slog.String("client", "amocrm_sources")),
		http:    &http.Client{Timeout: requestTimeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
	}
}

type sourceWire struct {
	ID         int64  `json:"id,omitempty"`
	Name       string `json:"name"`
	ExternalID string `json:"external_id"`
	PipelineID int64  `json:"pipeline_id,omitempty"`
	OriginCode string `json:"origin_code,omitempty"`
	Default    bool   `json:"default,omitempty"`
}

type sourcesEnvelope struct {
	Embedded struct {
		Sources []sourceWire `json:"sources"`
	} `json:"_embedded"`
}

// Sources lists all chat sources registered on the account.
func (c *SourceClient) Sources(ctx context.Context) ([]bridge.Source, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/v4/sources", nil)
	if err != nil {
		return nil, err
	}
	var envelope sourcesEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
	}
	sources := make([]bridge.Source, 0, len(envelope.Embedded.Sources))
	for _, w := range envelope.Embedded.Sources {
		sources = append(sources, fromWire(w))
	}
	return sources, nil
}

// SourceByName finds a source by its display name.
func (c *SourceClient) SourceByName(ctx context.Context, name string) (bridge.Source, bool, error) {
	sources, err := c.Sources(ctx)
	if err != nil {
		return bridge.Source{}, false, err
	}
	for _, s := range sources {
		if s.Name == name {
			return s, true, nil
		}
	}
	return bridge.Source{}, false, nil
}

// CreateSource registers a new chat source on the account.
func (c *SourceClient) CreateSource(ctx context.Context, source bridge.Source) (bridge.Source, error) {
	payload := []sourceWire{{
		Name:       source.Name,
		ExternalID: source.ExternalID,
		PipelineID: source.PipelineID,
		OriginCode: source.OriginCode,
		Default:    source.Default,
	}}
	raw, err := c.do(ctx, http.MethodPost, "/api/v4/sources", payload)
	if err != nil {
		return bridge.Source{}, fmt.Errorf("create source: %w", err)
	}
	var envelope sourcesEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return bridge.Source{}, fmt.Errorf("decode created source: %w", err)
		}
	}
	if len(envelope.Embedded.Sources) == 0 {
		return source, nil
	}
	created := fromWire(envelope.Embedded.Sources[0])
	c.logger.Info("created chat source",
		slog.Int64("source_id", created.ID),
		slog.String("name", created.Name))
	return created, nil
}

func fromWire(w sourceWire) bridge.Source {
	return bridge.Source{
		ID:         w.ID,
		Name:       w.Name,
		ExternalID: w.ExternalID,
		PipelineID: w.PipelineID,
		OriginCode: w.OriginCode,
		Default:    w.Default,
	}
}

func (c *SourceClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
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
		return nil, fmt.Errorf("amocrm sources %s %s: %w", method, path, err)
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
	return raw, nil
}

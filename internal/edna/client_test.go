package edna

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/temaline/chatbridge/internal/bridge"
	"github.com/temaline/chatbridge/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(nil, config.EdnaConfig{
		APIKey:       "secret-key",
		BaseURL:      srv.URL,
		IMType:       "whatsapp",
		SendPath:     "/api/messages/send",
		CallbackPath: "/api/callback/set",
	})
}

func TestSendMessage_PayloadAndResult(t *testing.T) {
	t.Parallel()
	var captured map[string]any
	var apiKey string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-API-KEY")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "edna-42"})
	})

	msg := &bridge.Message{
		Text:                 "reply text",
		SourceMessageID:      "amo-7",
		TargetConversationID: "79990000000",
		Recipient:            bridge.Participant{ExternalUserID: "+79990000000", Role: bridge.RoleClient},
	}
	result, err := client.SendMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if apiKey != "secret-key" {
		t.Errorf("X-API-KEY = %q, want secret-key", apiKey)
	}
	if captured["imType"] != "whatsapp" {
		t.Errorf("imType = %v, want whatsapp", captured["imType"])
	}
	if captured["subject"] != "+79990000000" {
		t.Errorf("subject = %v, want recipient identity", captured["subject"])
	}
	if result.MessageID != "edna-42" {
		t.Errorf("MessageID = %q, want edna-42", result.MessageID)
	}
	if result.Provider != bridge.ProviderEdna {
		t.Errorf("Provider = %q, want edna", result.Provider)
	}
}

func TestSendMessage_SubjectFallsBackToConversation(t *testing.T) {
	t.Parallel()
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	})

	msg := &bridge.Message{
		Text:                 "hi",
		SourceMessageID:      "amo-9",
		TargetConversationID: "conv-edna-1",
	}
	result, err := client.SendMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if captured["subject"] != "conv-edna-1" {
		t.Errorf("subject = %v, want target conversation id", captured["subject"])
	}
	// Empty response body: the source message id stands in for the vendor id.
	if result.MessageID != "amo-9" {
		t.Errorf("MessageID = %q, want amo-9", result.MessageID)
	}
}

func TestSendMessage_HTTPError(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := client.SendMessage(context.Background(), &bridge.Message{TargetConversationID: "c1"})
	if err == nil {
		t.Fatal("SendMessage() succeeded, want error on 502")
	}
}

func TestSetCallbacks(t *testing.T) {
	t.Parallel()
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/callback/set" {
			t.Errorf("path = %q, want /api/callback/set", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	})
	err := client.SetCallbacks(context.Background(), 42, "https://bridge/status", "https://bridge/in", "")
	if err != nil {
		t.Fatalf("SetCallbacks() error = %v", err)
	}
	if captured["subjectId"] != float64(42) {
		t.Errorf("subjectId = %v, want 42", captured["subjectId"])
	}
	if captured["statusCallbackUrl"] != "https://bridge/status" {
		t.Errorf("statusCallbackUrl = %v", captured["statusCallbackUrl"])
	}
	if _, ok := captured["messageMatcherCallbackUrl"]; ok {
		t.Error("messageMatcherCallbackUrl present, want omitted when empty")
	}
}

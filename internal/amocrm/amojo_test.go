package amocrm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/temaline/chatbridge/internal/bridge"
	"github.com/temaline/chatbridge/internal/config"
)

func newTestAmojo(t *testing.T, handler http.HandlerFunc) *AmojoClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAmojoClient(nil, config.AmoCRMConfig{
		AmojoBaseURL:     srv.URL,
		ScopeID:          "scope-1",
		ChannelID:        "chan",
		AccountID:        "acc",
		ChannelSecret:    "channel-secret",
		ConnectTitle:     "Bridge",
		HookAPIVersion:   "v2",
		SourceExternalID: "src-ext",
	})
}

func TestSign_KnownVector(t *testing.T) {
	t.Parallel()
	c := NewAmojoClient(nil, config.AmoCRMConfig{ChannelSecret: "channel-secret"})
	got := c.sign(
		"POST",
		"bb6cb5c68df4652941caf652a366f2d8",
		"application/json",
		"Mon, 02 Jan 2006 15:04:05 GMT",
		"/v2/origin/custom/scope-1",
	)
	want := "5fa96eda1bf09b6652808bb5936eac9d27bcc259"
	if got != want {
		t.Fatalf("sign() = %q, want %q", got, want)
	}
}

func TestSendMessage_TextPayload(t *testing.T) {
	t.Parallel()
	var captured map[string]any
	var headers http.Header
	client := newTestAmojo(t, func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		if r.URL.Path != "/v2/origin/custom/scope-1" {
			t.Errorf("path = %q, want /v2/origin/custom/scope-1", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"new_message": map[string]any{"conversation_id": "chat-amo-1", "msgid": "amo-msg-1"},
		})
	})

	msg := &bridge.Message{
		ContentType:          bridge.ContentText,
		Text:                 "hello",
		SourceMessageID:      "edna-1001",
		TargetConversationID: "conv-1",
		Sender:               bridge.Participant{ExternalUserID: "79990000000", DisplayName: "Ivan"},
	}
	result, err := client.SendMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	for _, header := range []string{"Date", "Content-Md5", "X-Signature"} {
		if headers.Get(header) == "" {
			t.Errorf("header %s missing", header)
		}
	}
	if captured["event_type"] != "new_message" {
		t.Errorf("event_type = %v", captured["event_type"])
	}
	inner, _ := captured["payload"].(map[string]any)
	if inner["conversation_id"] != "conv-1" {
		t.Errorf("conversation_id = %v, want conv-1", inner["conversation_id"])
	}
	if inner["msgid"] != "edna-1001" {
		t.Errorf("msgid = %v, want edna-1001", inner["msgid"])
	}
	source, _ := inner["source"].(map[string]any)
	if source["external_id"] != "src-ext" {
		t.Errorf("source.external_id = %v, want src-ext", source["external_id"])
	}
	if result.ConversationID != "chat-amo-1" || result.MessageID != "amo-msg-1" {
		t.Errorf("result = %+v, want ids from response", result)
	}
}

func TestSendMessage_MediaPayload(t *testing.T) {
	t.Parallel()
	var captured map[string]any
	client := newTestAmojo(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	})

	msg := &bridge.Message{
		ContentType:          bridge.ContentImage,
		SourceMessageID:      "edna-1002",
		TargetConversationID: "conv-1",
		Attachment:           &bridge.Attachment{URL: "https://cdn/pic.jpg", Filename: "pic.jpg", SizeBytes: 2048},
	}
	if _, err := client.SendMessage(context.Background(), msg); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	inner, _ := captured["payload"].(map[string]any)
	messageObj, _ := inner["message"].(map[string]any)
	if messageObj["type"] != "picture" {
		t.Errorf("message.type = %v, want picture", messageObj["type"])
	}
	if messageObj["media"] != "https://cdn/pic.jpg" {
		t.Errorf("message.media = %v", messageObj["media"])
	}
	if messageObj["file_size"] != float64(2048) {
		t.Errorf("message.file_size = %v, want 2048", messageObj["file_size"])
	}
}

func TestSendMessage_RequiresConversation(t *testing.T) {
	t.Parallel()
	client := newTestAmojo(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := client.SendMessage(context.Background(), &bridge.Message{Text: "x"})
	if err == nil {
		t.Fatal("SendMessage() without conversation id succeeded, want error")
	}
}

func TestUpdateMessageStatus_ErrorPayload(t *testing.T) {
	t.Parallel()
	var captured map[string]any
	var path string
	client := newTestAmojo(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	})

	err := client.NotifyDeliveryError(context.Background(), "amo-msg-1", bridge.ErrCodeCannotCreateChat, "")
	if err != nil {
		t.Fatalf("NotifyDeliveryError() error = %v", err)
	}
	if path != "/v2/origin/custom/scope-1/amo-msg-1/delivery_status" {
		t.Errorf("path = %q", path)
	}
	if captured["delivery_status"] != float64(-1) {
		t.Errorf("delivery_status = %v, want -1", captured["delivery_status"])
	}
	if captured["error_code"] != float64(904) {
		t.Errorf("error_code = %v, want 904", captured["error_code"])
	}
	if text, _ := captured["error"].(string); text == "" {
		t.Error("error text missing, want default for code")
	}
}

func TestNotifyStatus_SentIsSkipped(t *testing.T) {
	t.Parallel()
	client := newTestAmojo(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for sent status")
	})
	err := client.NotifyStatus(context.Background(), bridge.StatusUpdate{MessageID: "m", Status: bridge.StatusSent})
	if err != nil {
		t.Fatalf("NotifyStatus(sent) error = %v", err)
	}
}

func TestCreateChat(t *testing.T) {
	t.Parallel()
	var captured map[string]any
	client := newTestAmojo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/origin/custom/scope-1/chats" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "chat-new-1",
			"user": map[string]any{"id": "user-1", "name": "Ivan"},
		})
	})

	result, err := client.CreateChat(context.Background(), bridge.ChatRequest{
		ConversationID: "conv-edna-1",
		User: bridge.ChatUser{
			ID:      "edna_79990000000",
			Name:    "Ivan",
			Profile: &bridge.ChatUserProfile{Phone: "+79990000000"},
		},
		Source: &bridge.ChatSource{ExternalID: "src-ext"},
	})
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if result.ID != "chat-new-1" {
		t.Errorf("ID = %q, want chat-new-1", result.ID)
	}

	user, _ := captured["user"].(map[string]any)
	profile, _ := user["profile"].(map[string]any)
	if profile["phone"] != "+79990000000" {
		t.Errorf("user.profile.phone = %v", profile["phone"])
	}
	source, _ := captured["source"].(map[string]any)
	if source["external_id"] != "src-ext" {
		t.Errorf("source.external_id = %v", source["external_id"])
	}
}

func TestEnsureReady_Connect(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/origin/custom/chan/connect" {
			t.Errorf("path = %q, want connect", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"scope_id": "chan_acc"})
	}))
	t.Cleanup(srv.Close)

	client := NewAmojoClient(nil, config.AmoCRMConfig{
		AmojoBaseURL:  srv.URL,
		ChannelID:     "chan",
		AccountID:     "acc",
		ChannelSecret: "s",
	})
	if err := client.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady() error = %v", err)
	}
	scope, err := client.ensureScopeID(context.Background())
	if err != nil || scope != "chan_acc" {
		t.Fatalf("ensureScopeID() = (%q, %v), want (chan_acc, nil)", scope, err)
	}
}

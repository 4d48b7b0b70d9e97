package link_test

import (
	"context"
	"errors"
	"testing"

	"github.com/temaline/chatbridge/internal/bridge"
	"github.com/temaline/chatbridge/internal/link"
)

func TestMessageLink_UpsertIsIdempotent(t *testing.T) {
	t.Parallel()
	store := link.NewMemoryStore()
	ctx := context.Background()

	first := bridge.MessageLink{
		SourceProvider:       bridge.ProviderEdna,
		SourceMessageID:      "m1",
		TargetProvider:       bridge.ProviderAmoCRM,
		TargetMessageID:      "m1-a",
		TargetConversationID: "c1-a",
	}
	if err := store.SaveMessageLink(ctx, first); err != nil {
		t.Fatalf("SaveMessageLink() error = %v", err)
	}

	second := first
	second.TargetMessageID = "m1-b"
	if err := store.SaveMessageLink(ctx, second); err != nil {
		t.Fatalf("SaveMessageLink() error = %v", err)
	}

	got, err := store.MessageLink(ctx, "m1")
	if err != nil {
		t.Fatalf("MessageLink() error = %v", err)
	}
	if got.TargetMessageID != "m1-b" {
		t.Fatalf("TargetMessageID = %q, want %q (second write wins)", got.TargetMessageID, "m1-b")
	}
}

func TestMessageLink_AbsentKey(t *testing.T) {
	t.Parallel()
	store := link.NewMemoryStore()
	_, err := store.MessageLink(context.Background(), "missing")
	if !errors.Is(err, link.ErrNotFound) {
		t.Fatalf("MessageLink(missing) error = %v, want ErrNotFound", err)
	}
}

func TestConversationLink_ReverseLookup(t *testing.T) {
	t.Parallel()
	store := link.NewMemoryStore()
	ctx := context.Background()

	l := bridge.ConversationLink{AmoChatID: "chat-1", EdnaConversationID: "conv-1"}
	if err := store.SaveConversationLink(ctx, l); err != nil {
		t.Fatalf("SaveConversationLink() error = %v", err)
	}

	edna, err := store.EdnaConversationID(ctx, "chat-1")
	if err != nil || edna != "conv-1" {
		t.Fatalf("EdnaConversationID(chat-1) = (%q, %v), want (conv-1, nil)", edna, err)
	}
	amo, err := store.AmoChatID(ctx, "conv-1")
	if err != nil || amo != "chat-1" {
		t.Fatalf("AmoChatID(conv-1) = (%q, %v), want (chat-1, nil)", amo, err)
	}
	if _, err := store.AmoChatID(ctx, "conv-2"); !errors.Is(err, link.ErrNotFound) {
		t.Fatalf("AmoChatID(conv-2) error = %v, want ErrNotFound", err)
	}
}

func TestConversationLink_UpsertKeepsPhone(t *testing.T) {
	t.Parallel()
	store := link.NewMemoryStore()
	ctx := context.Background()

	if err := store.SaveConversationLink(ctx, bridge.ConversationLink{
		AmoChatID:          "chat-1",
		EdnaConversationID: "conv-1",
		Phone:              "+79990000000",
	}); err != nil {
		t.Fatalf("SaveConversationLink() error = %v", err)
	}
	// Re-link without a phone must not erase the stored one.
	if err := store.SaveConversationLink(ctx, bridge.ConversationLink{
		AmoChatID:          "chat-1",
		EdnaConversationID: "conv-1b",
	}); err != nil {
		t.Fatalf("SaveConversationLink() error = %v", err)
	}

	phone, err := store.Phone(ctx, "chat-1")
	if err != nil || phone != "+79990000000" {
		t.Fatalf("Phone(chat-1) = (%q, %v), want (+79990000000, nil)", phone, err)
	}
	edna, _ := store.EdnaConversationID(ctx, "chat-1")
	if edna != "conv-1b" {
		t.Fatalf("EdnaConversationID = %q, want conv-1b", edna)
	}
}

func TestSavePhone(t *testing.T) {
	t.Parallel()
	store := link.NewMemoryStore()
	ctx := context.Background()

	if err := store.SavePhone(ctx, "missing", "+7000"); !errors.Is(err, link.ErrNotFound) {
		t.Fatalf("SavePhone(missing) error = %v, want ErrNotFound", err)
	}

	if err := store.SaveConversationLink(ctx, bridge.ConversationLink{AmoChatID: "chat-1", EdnaConversationID: "conv-1"}); err != nil {
		t.Fatalf("SaveConversationLink() error = %v", err)
	}
	if _, err := store.Phone(ctx, "chat-1"); !errors.Is(err, link.ErrNotFound) {
		t.Fatalf("Phone before SavePhone error = %v, want ErrNotFound", err)
	}
	if err := store.SavePhone(ctx, "chat-1", "+79990000000"); err != nil {
		t.Fatalf("SavePhone() error = %v", err)
	}
	phone, err := store.Phone(ctx, "chat-1")
	if err != nil || phone != "+79990000000" {
		t.Fatalf("Phone(chat-1) = (%q, %v), want (+79990000000, nil)", phone, err)
	}

	id, err := store.ChatIDByPhone(ctx, "+79990000000")
	if err != nil || id != "chat-1" {
		t.Fatalf("ChatIDByPhone = (%q, %v), want (chat-1, nil)", id, err)
	}
}

package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/temaline/chatbridge/internal/bridge"
	"github.com/temaline/chatbridge/internal/link"
)

// SourceCache lazily resolves the chat source the bridge tags created chats
// with, looking it up by name and creating it when missing. The resolved
// source is kept until Invalidate is called.
type SourceCache struct {
	provider   bridge.SourceProvider
	name       string
	externalID string
	pipelineID int64

	mu     sync.Mutex
	cached *bridge.Source
}

func NewSourceCache(provider bridge.SourceProvider, name, externalID string, pipelineID int64) *SourceCache {
	return &SourceCache{
		provider:   provider,
		name:       name,
		externalID: externalID,
		pipelineID: pipelineID,
	}
}

// Get returns the cached source, resolving it on first use.
func (c *SourceCache) Get(ctx context.Context) (bridge.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil {
		return *c.cached, nil
	}
	if c.provider == nil {
		return bridge.Source{}, errors.New("no source provider configured")
	}

	src, found, err := c.provider.SourceByName(ctx, c.name)
	if err != nil {
		return bridge.Source{}, fmt.Errorf("look up chat source %q: %w", c.name, err)
	}
	if !found {
		src, err = c.provider.CreateSource(ctx, bridge.Source{
			Name:       c.name,
			ExternalID: c.externalID,
			PipelineID: c.pipelineID,
		})
		if err != nil {
			return bridge.Source{}, fmt.Errorf("create chat source %q: %w", c.name, err)
		}
	}
	c.cached = &src
	return src, nil
}

// Invalidate drops the cached source so the next Get resolves it again.
func (c *SourceCache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// chatFinder is the slice of the link store the provisioner needs.
type chatFinder interface {
	ChatIDByPhone(ctx context.Context, phone string) (string, error)
}

// ProvisionResult is the amoCRM chat resolved or created for a first
// inbound message.
type ProvisionResult struct {
	ChatID   string
	Phone    string
	Existing bool
}

// Provisioner resolves the amoCRM chat for an edna conversation that has no
// stored link yet. It reuses a chat already bound to the client's phone and
// creates one otherwise. It never writes the conversation link; that is
// committed by the router after the first successful send.
//
// There is no lock around the check-then-create sequence, so two concurrent
// first messages for one conversation may provision two chats.
type Provisioner struct {
	logger  *slog.Logger
	chats   chatFinder
	creator bridge.ChatCreator
	sources *SourceCache
}

func NewProvisioner(log *slog.Logger, chats chatFinder, creator bridge.ChatCreator, sources *SourceCache) *Provisioner {
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{
		logger:  log.With(slog.String("component", "provisioner")),
		chats:   chats,
		creator: creator,
		sources: sources,
	}
}

// EnsureChat returns an amoCRM chat id usable as the send target for the
// given edna conversation.
func (p *Provisioner) EnsureChat(ctx context.Context, ednaConversationID string, identity bridge.Participant) (ProvisionResult, error) {
	phone := ""
	if bridge.PhoneShaped(identity.ExternalUserID) {
		phone = identity.ExternalUserID
	}

	if phone != "" {
		chatID, err := p.chats.ChatIDByPhone(ctx, phone)
		if err == nil && chatID != "" {
			return ProvisionResult{ChatID: chatID, Phone: phone, Existing: true}, nil
		}
		if err != nil && !errors.Is(err, link.ErrNotFound) {
			p.logger.Warn("chat lookup by phone failed",
				slog.String("phone", phone),
				slog.Any("error", err))
		}
	}

	if p.creator == nil {
		return ProvisionResult{}, fmt.Errorf("%w: chat creation is not available", ErrCannotCreateChat)
	}

	req := bridge.ChatRequest{
		ConversationID: ednaConversationID,
		User:           chatUser(identity, phone),
	}
	if p.sources != nil {
		src, err := p.sources.Get(ctx)
		if err != nil {
			p.logger.Warn("chat source unavailable, creating chat without one", slog.Any("error", err))
		} else if src.ExternalID != "" {
			req.Source = &bridge.ChatSource{ExternalID: src.ExternalID}
		}
	}

	result, err := p.creator.CreateChat(ctx, req)
	if err != nil {
		if p.sources != nil {
			p.sources.Invalidate()
		}
		return ProvisionResult{}, fmt.Errorf("%w: %v", ErrCannotCreateChat, err)
	}
	p.logger.Info("provisioned amoCRM chat",
		slog.String("chat_id", result.ID),
		slog.String("conversation_id", ednaConversationID))
	return ProvisionResult{ChatID: result.ID, Phone: phone}, nil
}

func chatUser(identity bridge.Participant, phone string) bridge.ChatUser {
	name := identity.DisplayName
	if name == "" {
		name = identity.ExternalUserID
	}
	user := bridge.ChatUser{
		ID:   "edna_" + identity.ExternalUserID,
		Name: name,
	}
	if phone != "" {
		user.Profile = &bridge.ChatUserProfile{Phone: phone}
	}
	return user
}

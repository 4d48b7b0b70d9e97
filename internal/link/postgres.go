package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/temaline/chatbridge/internal/bridge"
)

// PostgresStore persists links in the conversation_links and message_links
// tables. Upserts ride on ON CONFLICT so repeated routing of the same source
// message stays idempotent.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EdnaConversationID(ctx context.Context, amoChatID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT edna_conversation_id FROM conversation_links WHERE amo_chat_id = $1`,
		amoChatID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query conversation link: %w", err)
	}
	return id, nil
}

// AmoChatID is the reverse lookup. The edna side carries no uniqueness
// constraint, so the query takes the first matching row.
func (s *PostgresStore) AmoChatID(ctx context.Context, ednaConversationID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT amo_chat_id FROM conversation_links WHERE edna_conversation_id = $1 LIMIT 1`,
		ednaConversationID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query conversation link: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Phone(ctx context.Context, amoChatID string) (string, error) {
	var phone *string
	err := s.pool.QueryRow(ctx,
		`SELECT phone FROM conversation_links WHERE amo_chat_id = $1`,
		amoChatID,
	).Scan(&phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query phone: %w", err)
	}
	if phone == nil || *phone == "" {
		return "", ErrNotFound
	}
	return *phone, nil
}

func (s *PostgresStore) ChatIDByPhone(ctx context.Context, phone string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT amo_chat_id FROM conversation_links WHERE phone = $1 LIMIT 1`,
		phone,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query chat by phone: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) SaveConversationLink(ctx context.Context, l bridge.ConversationLink) error {
	var phone *string
	if l.Phone != "" {
		phone = &l.Phone
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_links (amo_chat_id, edna_conversation_id, phone)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (amo_chat_id) DO UPDATE
		 SET edna_conversation_id = EXCLUDED.edna_conversation_id,
		     phone = COALESCE(EXCLUDED.phone, conversation_links.phone)`,
		l.AmoChatID, l.EdnaConversationID, phone,
	)
	if err != nil {
		return fmt.Errorf("save conversation link: %w", err)
	}
	return nil
}

func (s *PostgresStore) SavePhone(ctx context.Context, amoChatID, phone string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversation_links SET phone = $2 WHERE amo_chat_id = $1`,
		amoChatID, phone,
	)
	if err != nil {
		return fmt.Errorf("save phone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MessageLink(ctx context.Context, sourceMessageID string) (bridge.MessageLink, error) {
	var l bridge.MessageLink
	err := s.pool.QueryRow(ctx,
		`SELECT source_provider, source_message_id, target_provider, target_message_id, target_conversation_id
		 FROM message_links WHERE source_message_id = $1`,
		sourceMessageID,
	).Scan(&l.SourceProvider, &l.SourceMessageID, &l.TargetProvider, &l.TargetMessageID, &l.TargetConversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return bridge.MessageLink{}, ErrNotFound
	}
	if err != nil {
		return bridge.MessageLink{}, fmt.Errorf("query message link: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) SaveMessageLink(ctx context.Context, l bridge.MessageLink) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO message_links (source_message_id, source_provider, target_provider, target_message_id, target_conversation_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (source_message_id) DO UPDATE
		 SET source_provider = EXCLUDED.source_provider,
		     target_provider = EXCLUDED.target_provider,
		     target_message_id = EXCLUDED.target_message_id,
		     target_conversation_id = EXCLUDED.target_conversation_id`,
		l.SourceMessageID, l.SourceProvider, l.TargetProvider, l.TargetMessageID, l.TargetConversationID,
	)
	if err != nil {
		return fmt.Errorf("save message link: %w", err)
	}
	return nil
}

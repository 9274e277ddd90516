package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func NewConversationRepositoryWithTx(tx pgx.Tx) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

func (r *ConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO conversations (id, session_id, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.SessionID, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *ConversationRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.QueryRow(ctx,
		`SELECT id, session_id, created_at, updated_at FROM conversations WHERE session_id = $1`,
		sessionID,
	).Scan(&c.ID, &c.SessionID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Touch bumps updated_at so recently active sessions sort first.
func (r *ConversationRepository) Touch(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) CreateMessage(ctx context.Context, m *domain.Message) error {
	meta, err := jsonb(m.Metadata)
	if err != nil {
		return err
	}
	citations := m.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	cites, err := jsonb(citations)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, metadata, citations, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ConversationID, m.Role, m.Content, meta, cites, m.CreatedAt,
	)
	return err
}

// ListMessages returns every message of a conversation, oldest first.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, role, content, metadata, citations, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*domain.Message{}
	for rows.Next() {
		var (
			m           domain.Message
			meta, cites []byte
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &meta, &cites, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.Metadata, err = metadataFrom(meta); err != nil {
			return nil, err
		}
		if len(cites) > 0 {
			if err := json.Unmarshal(cites, &m.Citations); err != nil {
				return nil, fmt.Errorf("failed to decode citations: %w", err)
			}
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

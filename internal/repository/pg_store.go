package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"gemini-chat/internal/domain"
)

// PgConversationStore persiste cada conversación como una fila JSONB y el id
// seleccionado en una tabla de una sola fila. Save reemplaza la colección
// completa dentro de una transacción ("last full-collection write wins").
type PgConversationStore struct {
	pool   *pgxpool.Pool
	max    int
	logger *zap.Logger
}

func NewPgConversationStore(pool *pgxpool.Pool, max int, logger *zap.Logger) *PgConversationStore {
	if pool == nil {
		return nil
	}
	return &PgConversationStore{pool: pool, max: max, logger: logger}
}

// EnsureSchema crea las tablas del store si no existen.
func (s *PgConversationStore) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS selected_conversation (
			singleton       BOOLEAN PRIMARY KEY DEFAULT TRUE,
			conversation_id TEXT NOT NULL DEFAULT '',
			CONSTRAINT selected_conversation_singleton CHECK (singleton)
		);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PgConversationStore) Load(ctx context.Context) ([]domain.Conversation, error) {
	const query = `
		SELECT data
		FROM conversations
		ORDER BY updated_at ASC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []domain.Conversation{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var conv domain.Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			// Una fila corrupta se descarta sin tumbar la carga completa.
			if s.logger != nil {
				s.logger.Warn("skipping unparseable conversation row", zap.Error(err))
			}
			continue
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return convs, nil
}

func (s *PgConversationStore) Save(ctx context.Context, convs []domain.Conversation) error {
	return saveWithEviction(ctx, s.logger, convs, s.replaceAll)
}

func (s *PgConversationStore) replaceAll(ctx context.Context, convs []domain.Conversation) error {
	if s.max > 0 && len(convs) > s.max {
		return ErrCapacityExceeded
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM conversations`); err != nil {
		return err
	}

	const insert = `
		INSERT INTO conversations (id, data, updated_at)
		VALUES ($1, $2, $3)
	`
	for _, conv := range convs {
		data, err := json.Marshal(conv)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insert, conv.ID, data, conv.UpdatedAt); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PgConversationStore) LoadSelectedID(ctx context.Context) (string, error) {
	const query = `
		SELECT conversation_id
		FROM selected_conversation
		LIMIT 1
	`
	var id string
	err := s.pool.QueryRow(ctx, query).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *PgConversationStore) SaveSelectedID(ctx context.Context, id string) error {
	const query = `
		INSERT INTO selected_conversation (singleton, conversation_id)
		VALUES (TRUE, $1)
		ON CONFLICT (singleton) DO UPDATE SET conversation_id = EXCLUDED.conversation_id
	`
	_, err := s.pool.Exec(ctx, query, id)
	return err
}

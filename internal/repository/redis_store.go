package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gemini-chat/internal/domain"
)

const (
	conversationsKey = "chat:conversations"
	selectedKey      = "chat:selected"
)

// redisKVClient es el subconjunto de comandos que usa el store. Permite
// mockear el cliente en tests.
type redisKVClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisConversationStore persiste la colección como un único valor JSON bajo
// una clave fija, y el id seleccionado bajo otra. Es el análogo directo de
// los dos registros de localStorage del cliente original.
type RedisConversationStore struct {
	client redisKVClient
	logger *zap.Logger
}

func NewRedisConversationStore(client *redis.Client, logger *zap.Logger) *RedisConversationStore {
	if client == nil {
		return nil
	}
	return &RedisConversationStore{client: client, logger: logger}
}

func (s *RedisConversationStore) Load(ctx context.Context) ([]domain.Conversation, error) {
	raw, err := s.client.Get(ctx, conversationsKey).Result()
	if errors.Is(err, redis.Nil) {
		return []domain.Conversation{}, nil
	}
	if err != nil {
		return nil, err
	}

	var convs []domain.Conversation
	if err := json.Unmarshal([]byte(raw), &convs); err != nil {
		// Datos corruptos se tratan como ausencia, no como error fatal.
		if s.logger != nil {
			s.logger.Warn("stored conversations unparseable, starting empty", zap.Error(err))
		}
		return []domain.Conversation{}, nil
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return convs, nil
}

func (s *RedisConversationStore) Save(ctx context.Context, convs []domain.Conversation) error {
	return saveWithEviction(ctx, s.logger, convs, func(ctx context.Context, convs []domain.Conversation) error {
		payload, err := json.Marshal(convs)
		if err != nil {
			return err
		}
		if err := s.client.Set(ctx, conversationsKey, payload, 0).Err(); err != nil {
			if isRedisOOM(err) {
				return ErrCapacityExceeded
			}
			return err
		}
		return nil
	})
}

func (s *RedisConversationStore) LoadSelectedID(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, selectedKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *RedisConversationStore) SaveSelectedID(ctx context.Context, id string) error {
	return s.client.Set(ctx, selectedKey, id, 0).Err()
}

// isRedisOOM detecta el rechazo por maxmemory ("OOM command not allowed...").
func isRedisOOM(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM")
}

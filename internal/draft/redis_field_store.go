package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"artnote-server/internal/models"
)

// DefaultFieldTTL - сколько живет черновик без изменений.
const DefaultFieldTTL = 7 * 24 * time.Hour

// Compile-time check
var _ FieldStore = (*redisFieldStore)(nil)

type redisFieldStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisFieldStore создает FieldStore поверх Redis.
// Состояние хранится JSON-строкой под ключом draft:fields:{key}.
func NewRedisFieldStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) FieldStore {
	if ttl <= 0 {
		ttl = DefaultFieldTTL
	}
	return &redisFieldStore{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisFieldStore"),
	}
}

func fieldsKey(key string) string {
	return fmt.Sprintf("draft:fields:%s", key)
}

// SaveFields сохраняет состояние полей и продлевает TTL.
func (s *redisFieldStore) SaveFields(ctx context.Context, key string, state models.DraftState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal draft fields: %w", err)
	}
	if err := s.client.Set(ctx, fieldsKey(key), payload, s.ttl).Err(); err != nil {
		s.logger.Error("Failed to save draft fields", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to save draft fields in redis: %w", err)
	}
	s.logger.Debug("Draft fields saved", zap.String("key", key), zap.Int("bytes", len(payload)))
	return nil
}

// LoadFields читает состояние полей.
func (s *redisFieldStore) LoadFields(ctx context.Context, key string) (models.DraftState, bool, error) {
	raw, err := s.client.Get(ctx, fieldsKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.logger.Debug("No saved draft fields", zap.String("key", key))
			return models.DraftState{}, false, nil
		}
		s.logger.Error("Failed to load draft fields", zap.String("key", key), zap.Error(err))
		return models.DraftState{}, false, fmt.Errorf("failed to load draft fields from redis: %w", err)
	}

	var state models.DraftState
	if err := json.Unmarshal(raw, &state); err != nil {
		// Поврежденные данные - то же самое, что отсутствие сохранения
		s.logger.Warn("Corrupted draft fields in redis", zap.String("key", key), zap.Error(err))
		return models.DraftState{}, false, nil
	}
	if state.Fields == nil {
		state.Fields = map[string]string{}
	}
	if state.Images == nil {
		state.Images = []models.ImageRef{}
	}
	return state, true, nil
}

// ClearFields удаляет состояние полей.
func (s *redisFieldStore) ClearFields(ctx context.Context, key string) error {
	deleted, err := s.client.Del(ctx, fieldsKey(key)).Result()
	if err != nil {
		s.logger.Error("Failed to clear draft fields", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to clear draft fields in redis: %w", err)
	}
	s.logger.Debug("Draft fields cleared", zap.String("key", key), zap.Int64("deleted", deleted))
	return nil
}

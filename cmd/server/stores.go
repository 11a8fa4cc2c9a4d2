package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"artnote-server/internal/config"
	"artnote-server/internal/draft"
)

// draftStores - хранилища черновиков. Любое из них может быть nil:
// слой черновика тогда работает только в памяти.
type draftStores struct {
	fields  draft.FieldStore
	images  draft.ImageStore
	closers []func() error
}

func (s *draftStores) Close() {
	for _, c := range s.closers {
		_ = c()
	}
}

type retryPolicy struct {
	attempts int
	delay    time.Duration
}

// openDraftStores подключает Redis и SQLite. Недоступность хранилищ не
// останавливает сервис: сеансы продолжают работать без сохранения черновиков.
func openDraftStores(ctx context.Context, cfg *config.Config, redisRetry retryPolicy, log *zap.Logger) *draftStores {
	stores := &draftStores{}

	client, err := setupRedis(ctx, cfg, redisRetry, log)
	if err != nil {
		// Клиент go-redis переподключается сам, поля начнут сохраняться после восстановления Redis
		log.Warn("Redis is unavailable, draft fields are not persisted until it recovers", zap.Error(err))
	}
	stores.fields = draft.NewRedisFieldStore(client, cfg.DraftTTL, log)
	stores.closers = append(stores.closers, client.Close)

	imageStore, err := openImageStore(ctx, cfg.DraftImagesDB, log)
	if err != nil {
		log.Warn("Draft image store is unavailable, draft images are kept in memory only", zap.Error(err))
	} else {
		stores.images = imageStore
		stores.closers = append(stores.closers, imageStore.Close)
	}
	return stores
}

func openImageStore(ctx context.Context, path string, log *zap.Logger) (*draft.SQLiteImageStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create draft images directory: %w", err)
	}
	return draft.OpenSQLiteImageStore(ctx, path, log)
}

// setupRedis создает клиент и проверяет соединение с повторными попытками.
// Клиент возвращается и при ошибке.
func setupRedis(ctx context.Context, cfg *config.Config, retry retryPolicy, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	attempts := max(retry.attempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		if err == nil {
			log.Info("Successfully connected and pinged Redis", zap.Int("attempt", attempt))
			return client, nil
		}
		lastErr = err
		log.Warn("Redis ping failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", attempts),
			zap.Error(err),
		)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return client, ctx.Err()
			case <-time.After(retry.delay):
			}
		}
	}
	return client, fmt.Errorf("failed to connect to redis after %d attempts: %w", attempts, lastErr)
}

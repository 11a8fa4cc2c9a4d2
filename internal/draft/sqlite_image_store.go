package draft

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Драйвер "sqlite"

	"artnote-server/internal/models"
)

const createDraftImagesTable = `
CREATE TABLE IF NOT EXISTS draft_images (
    draft_key     TEXT    NOT NULL,
    ordinal       INTEGER NOT NULL,
    original_name TEXT    NOT NULL,
    content_type  TEXT    NOT NULL,
    data          BLOB    NOT NULL,
    PRIMARY KEY (draft_key, ordinal)
)`

// Compile-time check
var _ ImageStore = (*SQLiteImageStore)(nil)

// SQLiteImageStore хранит изображения черновиков в локальном файле SQLite.
type SQLiteImageStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLiteImageStore открывает (и при необходимости создает) базу по пути path.
func OpenSQLiteImageStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteImageStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite image store %s: %w", path, err)
	}
	// Один писатель: SQLite сериализует запись
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createDraftImagesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create draft_images table: %w", err)
	}
	return &SQLiteImageStore{db: db, logger: logger.Named("SQLiteImageStore")}, nil
}

// Close закрывает базу.
func (s *SQLiteImageStore) Close() error {
	return s.db.Close()
}

// SaveImages заменяет изображения черновика одной транзакцией (очистка, затем запись).
func (s *SQLiteImageStore) SaveImages(ctx context.Context, key string, assets []models.ImageAsset) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin image transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback image transaction", zap.Error(rbErr), zap.NamedError("original_error", err))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM draft_images WHERE draft_key = ?`, key); err != nil {
		return fmt.Errorf("failed to clear draft images: %w", err)
	}
	for _, a := range assets {
		data := a.Data
		if data == nil {
			data = []byte{}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO draft_images (draft_key, ordinal, original_name, content_type, data) VALUES (?, ?, ?, ?, ?)`,
			key, a.Ordinal, a.OriginalName, a.ContentType, data,
		)
		if err != nil {
			return fmt.Errorf("failed to insert draft image %d: %w", a.Ordinal, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit draft images: %w", err)
	}

	s.logger.Debug("Draft images saved", zap.String("key", key), zap.Int("count", len(assets)))
	return nil
}

// LoadImages читает изображения черновика по порядку.
func (s *SQLiteImageStore) LoadImages(ctx context.Context, key string) ([]models.ImageAsset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, original_name, content_type, data FROM draft_images WHERE draft_key = ? ORDER BY ordinal`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query draft images: %w", err)
	}
	defer rows.Close()

	assets := []models.ImageAsset{}
	for rows.Next() {
		var a models.ImageAsset
		if err := rows.Scan(&a.Ordinal, &a.OriginalName, &a.ContentType, &a.Data); err != nil {
			return nil, fmt.Errorf("failed to scan draft image: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating draft images: %w", err)
	}
	return assets, nil
}

// ClearImages удаляет изображения черновика.
func (s *SQLiteImageStore) ClearImages(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM draft_images WHERE draft_key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to clear draft images: %w", err)
	}
	affected, _ := res.RowsAffected()
	s.logger.Debug("Draft images cleared", zap.String("key", key), zap.Int64("rows", affected))
	return nil
}

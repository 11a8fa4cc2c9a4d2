package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"artnote-server/internal/database"
	"artnote-server/internal/models"
)

const (
	getTemplateQuery   = `SELECT id, title, guidance FROM curriculum_topics WHERE id = $1`
	listTemplatesQuery = `SELECT id, title, guidance FROM curriculum_topics WHERE id = ANY($1::uuid[]) ORDER BY title`
	listAllQuery       = `SELECT id, title, guidance FROM curriculum_topics ORDER BY title`
	upsertTopicQuery   = `
        INSERT INTO curriculum_topics (id, title, guidance)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET
            title = EXCLUDED.title,
            guidance = EXCLUDED.guidance
    `
)

// PgTemplateRepository читает темы учебной программы из PostgreSQL.
type PgTemplateRepository struct {
	db     database.DBTX
	logger *zap.Logger
}

// NewPgTemplateRepository создает репозиторий тем.
func NewPgTemplateRepository(db database.DBTX, logger *zap.Logger) *PgTemplateRepository {
	return &PgTemplateRepository{db: db, logger: logger.Named("PgTemplateRepo")}
}

// GetTemplate возвращает тему по ID.
func (r *PgTemplateRepository) GetTemplate(ctx context.Context, topicID uuid.UUID) (*models.TemplateSource, error) {
	var source models.TemplateSource
	if err := pgxscan.Get(ctx, r.db, &source, getTemplateQuery, topicID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: topic '%s'", models.ErrNotFound, topicID)
		}
		r.logger.Error("Error getting template", zap.Stringer("topic_id", topicID), zap.Error(err))
		return nil, fmt.Errorf("database error getting template: %w", err)
	}
	return &source, nil
}

// ListTemplates возвращает темы по списку ID. Пустой список - все темы.
func (r *PgTemplateRepository) ListTemplates(ctx context.Context, ids []uuid.UUID) ([]models.TemplateSource, error) {
	var sources []models.TemplateSource
	var err error
	if len(ids) == 0 {
		err = pgxscan.Select(ctx, r.db, &sources, listAllQuery)
	} else {
		raw := make([]string, len(ids))
		for i, id := range ids {
			raw[i] = id.String()
		}
		err = pgxscan.Select(ctx, r.db, &sources, listTemplatesQuery, pq.Array(raw))
	}
	if err != nil {
		r.logger.Error("Error listing templates", zap.Int("ids", len(ids)), zap.Error(err))
		return nil, fmt.Errorf("database error listing templates: %w", err)
	}
	if sources == nil {
		sources = []models.TemplateSource{}
	}
	return sources, nil
}

// SaveTemplate создает или обновляет тему.
func (r *PgTemplateRepository) SaveTemplate(ctx context.Context, source models.TemplateSource) error {
	if source.TopicID == uuid.Nil {
		return fmt.Errorf("%w: topic id is empty", models.ErrValidation)
	}
	if _, err := r.db.Exec(ctx, upsertTopicQuery, source.TopicID, source.Title, source.Guidance); err != nil {
		r.logger.Error("Error saving template", zap.Stringer("topic_id", source.TopicID), zap.Error(err))
		return fmt.Errorf("database error saving template: %w", err)
	}
	return nil
}

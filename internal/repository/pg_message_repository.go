// Package repository хранит итоговые сообщения и методические описания тем.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"artnote-server/internal/database"
	"artnote-server/internal/models"
)

const (
	deleteActiveMessageQuery = `DELETE FROM progress_messages WHERE student_id = $1 AND teacher_id = $2`

	insertMessageQuery = `
        INSERT INTO progress_messages (id, student_id, teacher_id, message, progress, topic_id, subject, image_urls, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `

	getActiveMessageQuery = `
        SELECT id, student_id, teacher_id, message, progress, topic_id, subject, image_urls, created_at
        FROM progress_messages
        WHERE student_id = $1 AND teacher_id = $2
    `
)

// PgMessageRepository хранит сообщения в PostgreSQL.
type PgMessageRepository struct {
	db     database.DBTX
	tx     *database.TransactionHelper
	logger *zap.Logger
}

// NewPgMessageRepository создает репозиторий сообщений.
func NewPgMessageRepository(db database.DBTX, tx *database.TransactionHelper, logger *zap.Logger) *PgMessageRepository {
	return &PgMessageRepository{
		db:     db,
		tx:     tx,
		logger: logger.Named("PgMessageRepo"),
	}
}

// ReplaceActiveMessage удаляет активное сообщение пары (ученик, учитель)
// и вставляет новое в одной транзакции.
func (r *PgMessageRepository) ReplaceActiveMessage(ctx context.Context, studentID, teacherID string, content models.MessageContent) (*models.MessageRecord, error) {
	log := r.logger.With(zap.String("student_id", studentID), zap.String("teacher_id", teacherID))

	record := &models.MessageRecord{
		ID:        uuid.New(),
		StudentID: studentID,
		TeacherID: teacherID,
		Message:   content.Message,
		Progress:  content.Progress,
		TopicID:   content.TopicID,
		Subject:   content.Subject,
		ImageURLs: content.ImageURLs,
		CreatedAt: time.Now().UTC(),
	}
	if record.ImageURLs == nil {
		record.ImageURLs = []string{}
	}

	err := r.tx.WithTransaction(ctx, func(ctx context.Context, tx database.DBTX) error {
		tag, err := tx.Exec(ctx, deleteActiveMessageQuery, studentID, teacherID)
		if err != nil {
			return fmt.Errorf("delete active message: %w", err)
		}
		if tag.RowsAffected() > 0 {
			log.Debug("Previous active message replaced", zap.Int64("rows_affected", tag.RowsAffected()))
		}
		_, err = tx.Exec(ctx, insertMessageQuery,
			record.ID, record.StudentID, record.TeacherID, record.Message, string(record.Progress),
			record.TopicID, record.Subject, pq.Array(record.ImageURLs), record.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to replace active message", zap.Error(err))
		return nil, fmt.Errorf("database error replacing message: %w", err)
	}

	log.Info("Active message replaced", zap.String("record_id", record.ID.String()))
	return record, nil
}

// GetActiveMessage возвращает активное сообщение пары (ученик, учитель).
func (r *PgMessageRepository) GetActiveMessage(ctx context.Context, studentID, teacherID string) (*models.MessageRecord, error) {
	var row messageRow
	err := pgxscan.Get(ctx, r.db, &row, getActiveMessageQuery, studentID, teacherID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: message for student '%s'", models.ErrNotFound, studentID)
		}
		r.logger.Error("Error getting active message", zap.String("student_id", studentID), zap.Error(err))
		return nil, fmt.Errorf("database error getting message: %w", err)
	}
	return row.record(), nil
}

// messageRow - строка progress_messages. image_urls читается через pq.StringArray.
type messageRow struct {
	ID        uuid.UUID      `db:"id"`
	StudentID string         `db:"student_id"`
	TeacherID string         `db:"teacher_id"`
	Message   string         `db:"message"`
	Progress  string         `db:"progress"`
	TopicID   *uuid.UUID     `db:"topic_id"`
	Subject   string         `db:"subject"`
	ImageURLs pq.StringArray `db:"image_urls"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r messageRow) record() *models.MessageRecord {
	urls := []string(r.ImageURLs)
	if urls == nil {
		urls = []string{}
	}
	return &models.MessageRecord{
		ID:        r.ID,
		StudentID: r.StudentID,
		TeacherID: r.TeacherID,
		Message:   r.Message,
		Progress:  models.Progress(strings.TrimSpace(r.Progress)),
		TopicID:   r.TopicID,
		Subject:   r.Subject,
		ImageURLs: urls,
		CreatedAt: r.CreatedAt,
	}
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Progress - классификация прогресса работы ученика.
type Progress string

const (
	ProgressStarted   Progress = "started"
	ProgressOngoing   Progress = "ongoing"
	ProgressCompleted Progress = "completed"
)

// AllProgress перечисляет допустимые значения в фиксированном порядке.
var AllProgress = []Progress{ProgressStarted, ProgressOngoing, ProgressCompleted}

// ParseProgress проверяет строковое значение прогресса.
func ParseProgress(s string) (Progress, error) {
	p := Progress(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProgressStarted, ProgressOngoing, ProgressCompleted:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown progress '%s'", ErrValidation, s)
}

// TemplateSource - методическое описание темы, заданное администратором.
// Для композера только чтение.
type TemplateSource struct {
	TopicID  uuid.UUID `db:"id" json:"topic_id"`
	Title    string    `db:"title" json:"title"`
	Guidance string    `db:"guidance" json:"guidance"`
}

// MessageContent - данные для записи итогового сообщения.
type MessageContent struct {
	Message   string
	Progress  Progress
	TopicID   *uuid.UUID
	Subject   string
	ImageURLs []string
}

// MessageRecord - сохраненное сообщение для родителей.
// Для пары (ученик, учитель) активна не более одной записи.
type MessageRecord struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	StudentID string     `db:"student_id" json:"student_id"`
	TeacherID string     `db:"teacher_id" json:"teacher_id"`
	Message   string     `db:"message" json:"message"`
	Progress  Progress   `db:"progress" json:"progress"`
	TopicID   *uuid.UUID `db:"topic_id" json:"topic_id,omitempty"`
	Subject   string     `db:"subject" json:"subject,omitempty"`
	ImageURLs []string   `db:"image_urls" json:"image_urls"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

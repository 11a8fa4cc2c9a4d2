// Package session управляет жизненным циклом черновика одного сеанса
// составления сообщения: восстановление, отложенное сохранение, изображения,
// генерация текста и запись итогового сообщения.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"artnote-server/internal/composer"
	"artnote-server/internal/draft"
	"artnote-server/internal/imaging"
	"artnote-server/internal/models"
)

// DefaultDebounceInterval - интервал отложенного сохранения полей.
const DefaultDebounceInterval = time.Second

// ObjectStore публикует байты изображения и возвращает публичный URL.
//
//go:generate mockery --name ObjectStore --output ../mocks --outpkg mocks --case=underscore
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// MessageStore хранит итоговые сообщения.
// Для пары (ученик, учитель) после вызова остается ровно одна активная запись.
//
//go:generate mockery --name MessageStore --output ../mocks --outpkg mocks --case=underscore
type MessageStore interface {
	ReplaceActiveMessage(ctx context.Context, studentID, teacherID string, content models.MessageContent) (*models.MessageRecord, error)
}

// TemplateStore читает методические описания тем.
//
//go:generate mockery --name TemplateStore --output ../mocks --outpkg mocks --case=underscore
type TemplateStore interface {
	GetTemplate(ctx context.Context, topicID uuid.UUID) (*models.TemplateSource, error)
}

// EventPublisher публикует событие о записанном сообщении.
//
//go:generate mockery --name EventPublisher --output ../mocks --outpkg mocks --case=underscore
type EventPublisher interface {
	PublishMessageCommitted(ctx context.Context, event models.MessageCommittedEvent) error
}

// Deps - зависимости координатора. Общие для всех сеансов.
type Deps struct {
	Fields     draft.FieldStore
	Images     draft.ImageStore
	Normalizer *imaging.Normalizer
	Composer   *composer.Engine
	Templates  TemplateStore
	Objects    ObjectStore
	Messages   MessageStore
	Publisher  EventPublisher // nil - события не публикуются
	Logger     *zap.Logger
}

// Options - параметры одного сеанса.
type Options struct {
	DraftKey         string
	TeacherID        string
	DebounceInterval time.Duration
	MaxEdge          int
	Quality          int
}

func (o Options) withDefaults() Options {
	if o.DebounceInterval <= 0 {
		o.DebounceInterval = DefaultDebounceInterval
	}
	if o.MaxEdge <= 0 {
		o.MaxEdge = imaging.DefaultMaxEdge
	}
	if o.Quality <= 0 {
		o.Quality = imaging.DefaultQuality
	}
	return o
}

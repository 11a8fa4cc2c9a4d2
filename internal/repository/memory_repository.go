package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"artnote-server/internal/models"
)

// MemoryMessageRepository хранит сообщения в памяти процесса.
// Используется в тестах и в CLI.
type MemoryMessageRepository struct {
	mu      sync.Mutex
	records map[string]models.MessageRecord
	fail    error
}

// NewMemoryMessageRepository создает пустой репозиторий.
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{records: map[string]models.MessageRecord{}}
}

func pairKey(studentID, teacherID string) string {
	return studentID + "\x00" + teacherID
}

// FailWith заставляет следующие записи завершаться ошибкой err. nil снимает отказ.
func (m *MemoryMessageRepository) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// ReplaceActiveMessage заменяет активное сообщение пары.
func (m *MemoryMessageRepository) ReplaceActiveMessage(_ context.Context, studentID, teacherID string, content models.MessageContent) (*models.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	urls := append([]string{}, content.ImageURLs...)
	record := models.MessageRecord{
		ID:        uuid.New(),
		StudentID: studentID,
		TeacherID: teacherID,
		Message:   content.Message,
		Progress:  content.Progress,
		TopicID:   content.TopicID,
		Subject:   content.Subject,
		ImageURLs: urls,
		CreatedAt: time.Now().UTC(),
	}
	m.records[pairKey(studentID, teacherID)] = record
	out := record
	return &out, nil
}

// GetActiveMessage возвращает активное сообщение пары.
func (m *MemoryMessageRepository) GetActiveMessage(_ context.Context, studentID, teacherID string) (*models.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[pairKey(studentID, teacherID)]
	if !ok {
		return nil, fmt.Errorf("%w: message for student '%s'", models.ErrNotFound, studentID)
	}
	return &record, nil
}

// Count возвращает количество активных сообщений.
func (m *MemoryMessageRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// MemoryTemplateRepository хранит темы в памяти процесса.
type MemoryTemplateRepository struct {
	mu      sync.RWMutex
	sources map[uuid.UUID]models.TemplateSource
}

// NewMemoryTemplateRepository создает репозиторий с заданными темами.
func NewMemoryTemplateRepository(sources ...models.TemplateSource) *MemoryTemplateRepository {
	r := &MemoryTemplateRepository{sources: map[uuid.UUID]models.TemplateSource{}}
	for _, s := range sources {
		r.sources[s.TopicID] = s
	}
	return r
}

// GetTemplate возвращает тему по ID.
func (r *MemoryTemplateRepository) GetTemplate(_ context.Context, topicID uuid.UUID) (*models.TemplateSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[topicID]
	if !ok {
		return nil, fmt.Errorf("%w: topic '%s'", models.ErrNotFound, topicID)
	}
	return &s, nil
}

// ListTemplates возвращает темы по списку ID, отсортированные по названию.
func (r *MemoryTemplateRepository) ListTemplates(_ context.Context, ids []uuid.UUID) ([]models.TemplateSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.TemplateSource{}
	if len(ids) == 0 {
		for _, s := range r.sources {
			out = append(out, s)
		}
	} else {
		for _, id := range ids {
			if s, ok := r.sources[id]; ok {
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// SaveTemplate создает или обновляет тему.
func (r *MemoryTemplateRepository) SaveTemplate(_ context.Context, source models.TemplateSource) error {
	if source.TopicID == uuid.Nil {
		return fmt.Errorf("%w: topic id is empty", models.ErrValidation)
	}
	r.mu.Lock()
	r.sources[source.TopicID] = source
	r.mu.Unlock()
	return nil
}

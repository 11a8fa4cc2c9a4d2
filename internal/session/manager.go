package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"artnote-server/internal/models"
)

// Manager хранит открытые сеансы процесса.
type Manager struct {
	mu       sync.RWMutex
	deps     Deps
	defaults Options
	byID     map[string]*Coordinator
	byKey    map[string]*Coordinator
	logger   *zap.Logger
}

// NewManager создает менеджер. defaults задает интервал сохранения и
// параметры сжатия для всех сеансов.
func NewManager(deps Deps, defaults Options) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Manager{
		deps:     deps,
		defaults: defaults,
		byID:     map[string]*Coordinator{},
		byKey:    map[string]*Coordinator{},
		logger:   deps.Logger.Named("SessionManager"),
	}
}

func scopedKey(teacherID, draftKey string) string {
	return teacherID + ":" + draftKey
}

// Open открывает сеанс для черновика преподавателя. Если сеанс для этого
// черновика уже открыт, возвращается он же.
func (m *Manager) Open(ctx context.Context, draftKey, teacherID string) (*Coordinator, error) {
	if strings.TrimSpace(draftKey) == "" {
		return nil, fmt.Errorf("%w: draft key is empty", models.ErrValidation)
	}
	key := scopedKey(teacherID, draftKey)

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byKey[key]; ok {
		return c, nil
	}

	opts := m.defaults
	opts.DraftKey = key
	opts.TeacherID = teacherID

	c, err := Open(ctx, m.deps, opts)
	if err != nil {
		return nil, err
	}
	m.byID[c.ID()] = c
	m.byKey[key] = c
	m.logger.Info("Session opened", zap.String("session_id", c.ID()), zap.String("teacher_id", teacherID))
	return c, nil
}

// Get возвращает сеанс, принадлежащий преподавателю.
func (m *Manager) Get(id, teacherID string) (*Coordinator, error) {
	m.mu.RLock()
	c, ok := m.byID[id]
	m.mu.RUnlock()
	if !ok || c.TeacherID() != teacherID {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	return c, nil
}

// Close закрывает сеанс. Несохраненные поля досохраняются.
func (m *Manager) Close(ctx context.Context, id, teacherID string) error {
	c, err := m.detach(id, teacherID)
	if err != nil {
		return err
	}
	c.Close(ctx)
	return nil
}

// Discard удаляет черновик и закрывает сеанс.
func (m *Manager) Discard(ctx context.Context, id, teacherID string) error {
	c, err := m.detach(id, teacherID)
	if err != nil {
		return err
	}
	if err := c.Discard(ctx); err != nil {
		return err
	}
	c.Close(ctx)
	return nil
}

func (m *Manager) detach(id, teacherID string) (*Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok || c.TeacherID() != teacherID {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	delete(m.byID, id)
	delete(m.byKey, c.DraftKey())
	return c, nil
}

// CloseAll закрывает все сеансы при остановке сервера.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Coordinator, 0, len(m.byID))
	for _, c := range m.byID {
		sessions = append(sessions, c)
	}
	m.byID = map[string]*Coordinator{}
	m.byKey = map[string]*Coordinator{}
	m.mu.Unlock()

	for _, c := range sessions {
		c.Close(ctx)
	}
	m.logger.Info("All sessions closed", zap.Int("count", len(sessions)))
}

// Count возвращает количество открытых сеансов.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

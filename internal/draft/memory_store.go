package draft

import (
	"context"
	"sort"
	"sync"

	"artnote-server/internal/models"
)

// MemoryStore - FieldStore и ImageStore в памяти процесса.
// Используется в тестах и в CLI, где внешнего хранилища нет.
type MemoryStore struct {
	mu     sync.Mutex
	fields map[string]models.DraftState
	images map[string][]models.ImageAsset
}

var (
	_ FieldStore = (*MemoryStore)(nil)
	_ ImageStore = (*MemoryStore)(nil)
)

// NewMemoryStore создает пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fields: map[string]models.DraftState{},
		images: map[string][]models.ImageAsset{},
	}
}

func (m *MemoryStore) SaveFields(_ context.Context, key string, state models.DraftState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[key] = state.Clone()
	return nil
}

func (m *MemoryStore) LoadFields(_ context.Context, key string) (models.DraftState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.fields[key]
	if !ok {
		return models.DraftState{}, false, nil
	}
	return state.Clone(), true, nil
}

func (m *MemoryStore) ClearFields(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fields, key)
	return nil
}

// SaveImages подменяет срез целиком, частично записанный набор не виден.
func (m *MemoryStore) SaveImages(_ context.Context, key string, assets []models.ImageAsset) error {
	next := copyAssets(assets)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Ordinal < next[j].Ordinal })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[key] = next
	return nil
}

func (m *MemoryStore) LoadImages(_ context.Context, key string) ([]models.ImageAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyAssets(m.images[key]), nil
}

func (m *MemoryStore) ClearImages(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, key)
	return nil
}

func copyAssets(assets []models.ImageAsset) []models.ImageAsset {
	out := make([]models.ImageAsset, len(assets))
	for i, a := range assets {
		a.Data = append([]byte(nil), a.Data...)
		out[i] = a
	}
	return out
}

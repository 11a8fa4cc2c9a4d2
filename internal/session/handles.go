package session

import (
	"sync"

	"github.com/google/uuid"

	"artnote-server/internal/models"
)

// Handle - ссылка на байты изображения, удерживаемые сеансом в памяти.
type Handle string

// HandleRegistry хранит байты изображений сеанса для предпросмотра.
// Каждый Acquire должен закончиться Release или ReleaseAll.
type HandleRegistry struct {
	mu    sync.Mutex
	items map[Handle]models.ImageAsset
}

// NewHandleRegistry создает пустой реестр.
func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{items: map[Handle]models.ImageAsset{}}
}

// Acquire регистрирует изображение и возвращает новый handle.
func (r *HandleRegistry) Acquire(asset models.ImageAsset) Handle {
	h := Handle(uuid.NewString())
	r.mu.Lock()
	r.items[h] = asset
	r.mu.Unlock()
	return h
}

// Get возвращает изображение по handle.
func (r *HandleRegistry) Get(h Handle) (models.ImageAsset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	asset, ok := r.items[h]
	return asset, ok
}

// Update заменяет метаданные изображения (например, порядковый номер).
func (r *HandleRegistry) Update(h Handle, fn func(*models.ImageAsset)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	asset, ok := r.items[h]
	if !ok {
		return false
	}
	fn(&asset)
	r.items[h] = asset
	return true
}

// Release освобождает handle. false - handle уже освобожден.
func (r *HandleRegistry) Release(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[h]; !ok {
		return false
	}
	delete(r.items, h)
	return true
}

// ReleaseAll освобождает все handles и возвращает их количество.
func (r *HandleRegistry) ReleaseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.items)
	r.items = map[Handle]models.ImageAsset{}
	return n
}

// Count возвращает количество удерживаемых handles.
func (r *HandleRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

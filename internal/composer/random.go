package composer

import (
	"math/rand"
	"sync"
	"time"
)

// RandomSource - источник случайности композера. Подменяется в тестах.
type RandomSource interface {
	// Intn возвращает число в [0, n). n > 0.
	Intn(n int) int
}

type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Intn(n)
}

// NewRandomSource создает источник, засеянный текущим временем.
func NewRandomSource() RandomSource {
	return NewSeededSource(time.Now().UnixNano())
}

// NewSeededSource создает воспроизводимый источник.
func NewSeededSource(seed int64) RandomSource {
	return &lockedRand{rnd: rand.New(rand.NewSource(seed))}
}

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"artnote-server/internal/models"
)

func TestHandleRegistry(t *testing.T) {
	r := NewHandleRegistry()
	a := r.Acquire(models.ImageAsset{OriginalName: "a.jpg", Data: []byte("a")})
	b := r.Acquire(models.ImageAsset{OriginalName: "b.jpg", Data: []byte("b"), Ordinal: 1})
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, r.Count())

	assert.True(t, r.Update(b, func(asset *models.ImageAsset) { asset.Ordinal = 0 }))
	got, ok := r.Get(b)
	assert.True(t, ok)
	assert.Equal(t, 0, got.Ordinal)

	assert.True(t, r.Release(a))
	assert.False(t, r.Release(a))
	assert.False(t, r.Update(a, func(*models.ImageAsset) {}))
	_, ok = r.Get(a)
	assert.False(t, ok)

	assert.Equal(t, 1, r.ReleaseAll())
	assert.Equal(t, 0, r.Count())
}

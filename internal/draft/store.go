// Package draft хранит незавершенный черновик сообщения так, чтобы он
// переживал перезапуск процесса, уход со страницы и потерю связи.
//
// Два независимых хранилища: поля (FieldStore) и изображения (ImageStore).
// Layer связывает их с ключом одного сеанса и никогда не возвращает ошибок.
package draft

import (
	"context"

	"artnote-server/internal/models"
)

// FieldStore хранит структурированные поля черновика.
//
//go:generate mockery --name FieldStore --output ../mocks --outpkg mocks --case=underscore
type FieldStore interface {
	// SaveFields полностью заменяет сохраненное состояние полей.
	SaveFields(ctx context.Context, key string, state models.DraftState) error
	// LoadFields возвращает сохраненное состояние. found=false, если сохранения нет.
	LoadFields(ctx context.Context, key string) (state models.DraftState, found bool, err error)
	// ClearFields удаляет сохраненное состояние. Отсутствие состояния не ошибка.
	ClearFields(ctx context.Context, key string) error
}

// ImageStore хранит байты изображений черновика.
// SaveImages атомарна: после нее видна либо старая, либо новая коллекция целиком.
//
//go:generate mockery --name ImageStore --output ../mocks --outpkg mocks --case=underscore
type ImageStore interface {
	SaveImages(ctx context.Context, key string, assets []models.ImageAsset) error
	// LoadImages возвращает изображения в порядке Ordinal.
	LoadImages(ctx context.Context, key string) ([]models.ImageAsset, error)
	ClearImages(ctx context.Context, key string) error
}

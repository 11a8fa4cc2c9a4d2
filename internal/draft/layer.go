package draft

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"artnote-server/internal/models"
)

// DefaultOpTimeout - предельное время одной операции с хранилищем.
const DefaultOpTimeout = 5 * time.Second

var persistenceErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "artnote_draft_persistence_errors_total",
		Help: "Draft persistence operations degraded to no-op.",
	},
	[]string{"op"},
)

// Layer - хранилище черновика, привязанное к одному ключу сеанса.
//
// Ни один метод не возвращает ошибку: недоступный бэкенд, ошибка или паника
// бэкенда логируются, считаются в метрике и превращаются в no-op.
// Работа преподавателя продолжается без сохранения.
type Layer struct {
	key       string
	fields    FieldStore
	images    ImageStore
	opTimeout time.Duration
	closed    atomic.Bool
	logger    *zap.Logger
}

// Open привязывает хранилища к ключу черновика.
// Любое из хранилищ может быть nil, тогда соответствующие операции пустые.
func Open(key string, fields FieldStore, images ImageStore, logger *zap.Logger) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Layer{
		key:       key,
		fields:    fields,
		images:    images,
		opTimeout: DefaultOpTimeout,
		logger:    logger.Named("DraftLayer").With(zap.String("draft_key", key)),
	}
}

// Key возвращает ключ черновика.
func (l *Layer) Key() string {
	return l.key
}

// Close отвязывает слой от хранилищ. Последующие операции пустые.
// Сами хранилища общие для сеансов и здесь не закрываются.
func (l *Layer) Close() {
	if l.closed.CompareAndSwap(false, true) {
		l.logger.Debug("Draft layer closed")
	}
}

// guard выполняет операцию с хранилищем и поглощает любой отказ.
func (l *Layer) guard(ctx context.Context, op string, fn func(ctx context.Context) error) (ok bool) {
	if l.closed.Load() {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			l.degrade(op, fmt.Errorf("%w: panic: %v", models.ErrPersistenceUnavailable, r))
			ok = false
		}
	}()

	opCtx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	if err := fn(opCtx); err != nil {
		l.degrade(op, err)
		return false
	}
	return true
}

func (l *Layer) degrade(op string, err error) {
	persistenceErrors.WithLabelValues(op).Inc()
	l.logger.Warn("Draft persistence degraded to no-op", zap.String("op", op), zap.Error(err))
}

// SaveFields полностью заменяет сохраненные поля.
func (l *Layer) SaveFields(ctx context.Context, state models.DraftState) {
	if l.fields == nil {
		return
	}
	l.guard(ctx, "save_fields", func(ctx context.Context) error {
		return l.fields.SaveFields(ctx, l.key, state)
	})
}

// LoadFields возвращает сохраненные поля. false - сохранения нет или оно недоступно.
func (l *Layer) LoadFields(ctx context.Context) (models.DraftState, bool) {
	if l.fields == nil {
		return models.NewDraftState(), false
	}
	var (
		state models.DraftState
		found bool
	)
	ok := l.guard(ctx, "load_fields", func(ctx context.Context) error {
		var err error
		state, found, err = l.fields.LoadFields(ctx, l.key)
		return err
	})
	if !ok || !found {
		return models.NewDraftState(), false
	}
	return state, true
}

// ClearFields удаляет сохраненные поля.
func (l *Layer) ClearFields(ctx context.Context) {
	if l.fields == nil {
		return
	}
	l.guard(ctx, "clear_fields", func(ctx context.Context) error {
		return l.fields.ClearFields(ctx, l.key)
	})
}

// SaveImages атомарно заменяет сохраненные изображения.
func (l *Layer) SaveImages(ctx context.Context, assets []models.ImageAsset) {
	if l.images == nil {
		return
	}
	l.guard(ctx, "save_images", func(ctx context.Context) error {
		return l.images.SaveImages(ctx, l.key, assets)
	})
}

// LoadImages возвращает сохраненные изображения по порядку. Пустой срез при отказе.
func (l *Layer) LoadImages(ctx context.Context) []models.ImageAsset {
	if l.images == nil {
		return []models.ImageAsset{}
	}
	var assets []models.ImageAsset
	ok := l.guard(ctx, "load_images", func(ctx context.Context) error {
		var err error
		assets, err = l.images.LoadImages(ctx, l.key)
		return err
	})
	if !ok || assets == nil {
		return []models.ImageAsset{}
	}
	return assets
}

// ClearImages удаляет сохраненные изображения.
func (l *Layer) ClearImages(ctx context.Context) {
	if l.images == nil {
		return
	}
	l.guard(ctx, "clear_images", func(ctx context.Context) error {
		return l.images.ClearImages(ctx, l.key)
	})
}

// Clear удаляет и поля, и изображения.
func (l *Layer) Clear(ctx context.Context) {
	l.ClearFields(ctx)
	l.ClearImages(ctx)
}

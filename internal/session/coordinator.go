package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"artnote-server/internal/composer"
	"artnote-server/internal/draft"
	"artnote-server/internal/imaging"
	"artnote-server/internal/models"
)

// Источник текста сообщения, попадающий в событие
const (
	sourceTemplate = "template"
	sourceManual   = "manual"
)

const exitGuardMessage = "작성 중인 메시지가 저장되지 않았어요. 페이지를 떠나면 내용이 사라질 수 있어요."

type imageEntry struct {
	ref    models.ImageRef
	handle Handle
	// URL после загрузки в хранилище объектов. Переиспользуется при повторном Commit.
	url string
}

// AddedImage - результат добавления одного файла.
type AddedImage struct {
	Ref        models.ImageRef `json:"ref"`
	Normalized bool            `json:"normalized"`
	Warning    string          `json:"warning,omitempty"`
}

// GenerateResult - сгенерированный текст и его происхождение.
type GenerateResult struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Reason string `json:"reason,omitempty"`
}

// ExitGuard - нужно ли предупредить пользователя при уходе со страницы.
type ExitGuard struct {
	Warn    bool   `json:"warn"`
	Message string `json:"message,omitempty"`
}

// Coordinator владеет черновиком одного сеанса.
// Все методы безопасны для вызова из параллельных HTTP-запросов.
type Coordinator struct {
	mu sync.Mutex

	id     string
	opts   Options
	deps   Deps
	layer  *draft.Layer
	logger *zap.Logger

	state      models.DraftState
	entries    []imageEntry
	handles    *HandleRegistry
	lastSource string
	// Растет при каждом сбросе черновика (Commit, Discard)
	draftGen uint64

	timer    *time.Timer
	timerSeq uint64
	closed   bool
}

// Open создает координатор и восстанавливает сохраненный черновик до того,
// как принять первое изменение. Отсутствие сохранения не ошибка.
func Open(ctx context.Context, deps Deps, opts Options) (*Coordinator, error) {
	if strings.TrimSpace(opts.DraftKey) == "" {
		return nil, fmt.Errorf("%w: draft key is empty", models.ErrValidation)
	}
	if strings.TrimSpace(opts.TeacherID) == "" {
		return nil, fmt.Errorf("%w: teacher id is empty", models.ErrValidation)
	}
	if deps.Composer == nil || deps.Messages == nil {
		return nil, errors.New("session: composer and message store are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = imaging.NewNormalizer(deps.Logger)
	}
	opts = opts.withDefaults()

	id := uuid.NewString()
	logger := deps.Logger.Named("Coordinator").With(
		zap.String("session_id", id),
		zap.String("draft_key", opts.DraftKey),
	)

	c := &Coordinator{
		id:      id,
		opts:    opts,
		deps:    deps,
		layer:   draft.Open(opts.DraftKey, deps.Fields, deps.Images, deps.Logger),
		logger:  logger,
		state:   models.NewDraftState(),
		handles: NewHandleRegistry(),
	}
	c.restore(ctx)
	return c, nil
}

func (c *Coordinator) restore(ctx context.Context) {
	state, found := c.layer.LoadFields(ctx)
	if found {
		c.state = state
	}

	assets := c.layer.LoadImages(ctx)
	sort.SliceStable(assets, func(i, j int) bool { return assets[i].Ordinal < assets[j].Ordinal })
	if len(assets) > models.MaxDraftImages {
		c.logger.Warn("Restored draft has too many images, keeping the first ones",
			zap.Int("restored", len(assets)), zap.Int("limit", models.MaxDraftImages))
		assets = assets[:models.MaxDraftImages]
	}
	for _, a := range assets {
		c.entries = append(c.entries, imageEntry{ref: a.Ref(), handle: c.handles.Acquire(a)})
	}
	c.syncRefsLocked()

	c.logger.Info("Draft restored",
		zap.Bool("fields_found", found),
		zap.Int("fields", len(c.state.Fields)),
		zap.Int("images", len(c.entries)),
	)
}

// ID возвращает идентификатор сеанса.
func (c *Coordinator) ID() string { return c.id }

// DraftKey возвращает ключ черновика в хранилище.
func (c *Coordinator) DraftKey() string { return c.opts.DraftKey }

// TeacherID возвращает преподавателя, которому принадлежит сеанс.
func (c *Coordinator) TeacherID() string { return c.opts.TeacherID }

// Snapshot возвращает копию текущего черновика.
func (c *Coordinator) Snapshot() models.DraftState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// HandleCount возвращает количество удерживаемых handles изображений.
func (c *Coordinator) HandleCount() int {
	return c.handles.Count()
}

// SetField изменяет одно поле. Сохранение отложено.
func (c *Coordinator) SetField(key, value string) error {
	return c.SetFields(map[string]string{key: value})
}

// SetFields изменяет несколько полей. Неизвестный ключ отклоняет весь набор.
func (c *Coordinator) SetFields(fields map[string]string) error {
	for key := range fields {
		if !models.IsKnownField(key) {
			return fmt.Errorf("%w: unknown field '%s'", models.ErrValidation, key)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return models.ErrSessionClosed
	}
	for key, value := range fields {
		if key == models.FieldMessage && value != c.state.Fields[key] {
			c.lastSource = sourceManual
		}
		c.state.Fields[key] = value
	}
	c.schedulePersistLocked()
	return nil
}

// AddImages нормализует и добавляет изображения в конец черновика.
// Пакет, превышающий лимит, отклоняется до любой обработки.
func (c *Coordinator) AddImages(ctx context.Context, files []imaging.File) ([]AddedImage, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files selected", models.ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, models.ErrSessionClosed
	}
	if len(c.entries)+len(files) > models.MaxDraftImages {
		return nil, fmt.Errorf("%w: draft has %d of %d images, cannot add %d",
			models.ErrTooManyImages, len(c.entries), models.MaxDraftImages, len(files))
	}

	results := c.deps.Normalizer.Normalize(ctx, files, c.opts.MaxEdge, c.opts.Quality)

	added := make([]AddedImage, 0, len(results))
	for _, res := range results {
		asset := res.Asset
		asset.Ordinal = len(c.entries)
		c.entries = append(c.entries, imageEntry{ref: asset.Ref(), handle: c.handles.Acquire(asset)})

		item := AddedImage{Ref: asset.Ref(), Normalized: res.Normalized}
		if res.Err != nil {
			item.Warning = "original file kept"
		}
		added = append(added, item)
	}
	c.syncRefsLocked()
	c.persistImagesLocked(ctx)
	c.schedulePersistLocked()

	c.logger.Info("Images added", zap.Int("added", len(added)), zap.Int("total", len(c.entries)))
	return added, nil
}

// RemoveImage удаляет изображение, перенумеровывает оставшиеся и освобождает handle.
func (c *Coordinator) RemoveImage(ctx context.Context, ordinal int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return models.ErrSessionClosed
	}
	if ordinal < 0 || ordinal >= len(c.entries) {
		return fmt.Errorf("%w: image %d", models.ErrNotFound, ordinal)
	}

	removed := c.entries[ordinal]
	c.entries = append(c.entries[:ordinal], c.entries[ordinal+1:]...)
	c.handles.Release(removed.handle)

	for i := range c.entries {
		c.entries[i].ref.Ordinal = i
		idx := i
		c.handles.Update(c.entries[i].handle, func(a *models.ImageAsset) { a.Ordinal = idx })
	}
	c.syncRefsLocked()
	c.persistImagesLocked(ctx)
	c.schedulePersistLocked()

	c.logger.Info("Image removed", zap.Int("ordinal", ordinal), zap.Int("total", len(c.entries)))
	return nil
}

// Preview возвращает байты изображения для предпросмотра.
func (c *Coordinator) Preview(ordinal int) (models.ImageAsset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return models.ImageAsset{}, models.ErrSessionClosed
	}
	if ordinal < 0 || ordinal >= len(c.entries) {
		return models.ImageAsset{}, fmt.Errorf("%w: image %d", models.ErrNotFound, ordinal)
	}
	asset, ok := c.handles.Get(c.entries[ordinal].handle)
	if !ok {
		return models.ImageAsset{}, fmt.Errorf("%w: image %d released", models.ErrNotFound, ordinal)
	}
	return asset, nil
}

// Generate проверяет черновик, собирает текст и кладет его в поле message.
// Блокировка на время генерации не удерживается.
func (c *Coordinator) Generate(ctx context.Context) (*GenerateResult, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, models.ErrSessionClosed
	}
	snapshot := c.state.Clone()
	gen := c.draftGen
	c.mu.Unlock()

	result, err := c.compose(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, models.ErrSessionClosed
	}
	if c.draftGen != gen {
		c.logger.Info("Draft was reset during generation, result dropped", zap.String("source", result.Source))
		return nil, models.ErrDraftChanged
	}
	c.state.Fields[models.FieldMessage] = result.Text
	c.lastSource = result.Source
	c.schedulePersistLocked()

	c.logger.Info("Message generated", zap.String("source", result.Source), zap.String("reason", result.Reason))
	return result, nil
}

func (c *Coordinator) compose(ctx context.Context, state models.DraftState) (*GenerateResult, error) {
	if state.Get(models.FieldStudentID) == "" {
		return nil, fmt.Errorf("%w: student is not selected", models.ErrValidation)
	}
	progress, err := models.ParseProgress(state.Get(models.FieldProgress))
	if err != nil {
		return nil, err
	}
	name := state.Get(models.FieldStudentName)
	memo := state.Get(models.FieldMemo)

	switch state.Mode() {
	case models.ModeFreeForm:
		subject := state.Get(models.FieldSubject)
		if subject == "" {
			return nil, fmt.Errorf("%w: subject is not set", models.ErrValidation)
		}
		comp := c.deps.Composer.ComposeFreeForm(ctx, composer.FreeFormInput{
			Name:      name,
			Age:       state.Age(),
			Subject:   subject,
			Materials: state.Materials(),
			Progress:  progress,
			Memo:      memo,
		})
		return &GenerateResult{Text: comp.Text, Source: string(comp.Source), Reason: comp.Reason}, nil
	default:
		source, err := c.templateSource(ctx, state)
		if err != nil {
			return nil, err
		}
		text, err := c.deps.Composer.ComposeTemplate(composer.TemplateInput{
			Source:   *source,
			Name:     name,
			Progress: progress,
			Memo:     memo,
			Young:    composer.IsYoung(state.Age()),
		})
		if err != nil {
			return nil, err
		}
		return &GenerateResult{Text: text, Source: sourceTemplate}, nil
	}
}

func (c *Coordinator) templateSource(ctx context.Context, state models.DraftState) (*models.TemplateSource, error) {
	rawID := state.Get(models.FieldTopicID)
	if rawID == "" {
		return nil, fmt.Errorf("%w: topic is not selected", models.ErrValidation)
	}
	topicID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid topic id '%s'", models.ErrValidation, rawID)
	}
	if c.deps.Templates == nil {
		title := state.Get(models.FieldTopicTitle)
		if title == "" {
			return nil, fmt.Errorf("%w: topic title is not set", models.ErrValidation)
		}
		return &models.TemplateSource{TopicID: topicID, Title: title}, nil
	}
	source, err := c.deps.Templates.GetTemplate(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", topicID, err)
	}
	return source, nil
}

// Commit загружает изображения и записывает итоговое сообщение.
// При отказе хранилища черновик сохраняется и возвращается ErrCommitFailed.
func (c *Coordinator) Commit(ctx context.Context) (*models.MessageRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, models.ErrSessionClosed
	}

	studentID := c.state.Get(models.FieldStudentID)
	if studentID == "" {
		return nil, fmt.Errorf("%w: student is not selected", models.ErrValidation)
	}
	message := c.state.Get(models.FieldMessage)
	if message == "" {
		return nil, fmt.Errorf("%w: message is empty", models.ErrValidation)
	}
	progress, err := models.ParseProgress(c.state.Get(models.FieldProgress))
	if err != nil {
		return nil, err
	}

	content := models.MessageContent{
		Message:   message,
		Progress:  progress,
		ImageURLs: []string{},
	}
	if c.state.Mode() == models.ModeFreeForm {
		content.Subject = c.state.Get(models.FieldSubject)
	} else if topicID, err := uuid.Parse(c.state.Get(models.FieldTopicID)); err == nil {
		content.TopicID = &topicID
	}

	log := c.logger.With(zap.String("student_id", studentID))

	if len(c.entries) > 0 && c.deps.Objects == nil {
		return nil, fmt.Errorf("%w: object store is not configured", models.ErrCommitFailed)
	}
	for i := range c.entries {
		e := &c.entries[i]
		if e.url != "" {
			content.ImageURLs = append(content.ImageURLs, e.url)
			continue
		}
		asset, ok := c.handles.Get(e.handle)
		if !ok {
			continue
		}
		url, err := c.deps.Objects.Upload(ctx, asset.Data, asset.ContentType)
		if err != nil {
			log.Error("Image upload failed, draft kept", zap.Int("ordinal", e.ref.Ordinal), zap.Error(err))
			return nil, fmt.Errorf("%w: upload image %d: %v", models.ErrCommitFailed, e.ref.Ordinal, err)
		}
		e.url = url
		content.ImageURLs = append(content.ImageURLs, url)
	}

	record, err := c.deps.Messages.ReplaceActiveMessage(ctx, studentID, c.opts.TeacherID, content)
	if err != nil {
		log.Error("Message store rejected commit, draft kept", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrCommitFailed, err)
	}

	source := c.lastSource
	if source == "" {
		source = sourceManual
	}
	imageCount := len(c.entries)

	c.stopTimerLocked()
	c.layer.Clear(ctx)
	released := c.handles.ReleaseAll()
	c.entries = nil
	c.state = models.NewDraftState()
	c.lastSource = ""
	c.draftGen++

	log.Info("Message committed",
		zap.String("record_id", record.ID.String()),
		zap.Int("images", imageCount),
		zap.Int("handles_released", released),
	)

	if c.deps.Publisher != nil {
		event := models.MessageCommittedEvent{
			EventID:    uuid.NewString(),
			RecordID:   record.ID,
			StudentID:  record.StudentID,
			TeacherID:  record.TeacherID,
			Progress:   record.Progress,
			TopicID:    record.TopicID,
			ImageCount: imageCount,
			Source:     source,
			Timestamp:  time.Now().UTC(),
		}
		if err := c.deps.Publisher.PublishMessageCommitted(ctx, event); err != nil {
			log.Warn("Failed to publish message committed event", zap.Error(err))
		}
	}
	return record, nil
}

// Discard удаляет черновик без записи сообщения.
func (c *Coordinator) Discard(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return models.ErrSessionClosed
	}
	c.stopTimerLocked()
	c.layer.Clear(ctx)
	released := c.handles.ReleaseAll()
	c.entries = nil
	c.state = models.NewDraftState()
	c.lastSource = ""
	c.draftGen++
	c.logger.Info("Draft discarded", zap.Int("handles_released", released))
	return nil
}

// ExitGuard сообщает, есть ли несохраненный в виде сообщения черновик.
func (c *Coordinator) ExitGuard() ExitGuard {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.IsEmpty() {
		return ExitGuard{}
	}
	return ExitGuard{Warn: true, Message: exitGuardMessage}
}

// Close завершает сеанс: досохраняет поля, останавливает таймер и
// освобождает все handles. Повторный вызов ничего не делает.
func (c *Coordinator) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.stopTimerLocked()
		c.persistFieldsLocked(ctx)
	}
	released := c.handles.ReleaseAll()
	c.entries = nil
	c.layer.Close()
	c.closed = true
	c.logger.Info("Session closed", zap.Int("handles_released", released))
}

func (c *Coordinator) syncRefsLocked() {
	refs := make([]models.ImageRef, len(c.entries))
	for i, e := range c.entries {
		refs[i] = e.ref
	}
	c.state.Images = refs
}

// schedulePersistLocked взводит таймер сохранения, если он еще не взведен.
// Изменения внутри окна таймер не перезапускают.
func (c *Coordinator) schedulePersistLocked() {
	if c.timer != nil {
		return
	}
	c.timerSeq++
	seq := c.timerSeq
	c.timer = time.AfterFunc(c.opts.DebounceInterval, func() {
		c.flushScheduled(seq)
	})
}

func (c *Coordinator) flushScheduled(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.timer == nil || seq != c.timerSeq {
		return
	}
	c.timer = nil
	c.persistFieldsLocked(context.Background())
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

func (c *Coordinator) persistFieldsLocked(ctx context.Context) {
	c.layer.SaveFields(ctx, c.state.Clone())
}

func (c *Coordinator) persistImagesLocked(ctx context.Context) {
	assets := make([]models.ImageAsset, 0, len(c.entries))
	for _, e := range c.entries {
		if asset, ok := c.handles.Get(e.handle); ok {
			assets = append(assets, asset)
		}
	}
	c.layer.SaveImages(ctx, assets)
}

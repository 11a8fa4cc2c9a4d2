package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"artnote-server/internal/composer"
	"artnote-server/internal/draft"
	"artnote-server/internal/generation"
	"artnote-server/internal/imaging"
	"artnote-server/internal/mocks"
	"artnote-server/internal/models"
	"artnote-server/internal/repository"
)

var autumnTopic = models.TemplateSource{
	TopicID:  uuid.MustParse("6f1c2d9e-3b0a-4f57-9a51-0c7d3c2b1a10"),
	Title:    "가을 나무",
	Guidance: "나뭇잎의 색 변화를 관찰합니다.",
}

// countingFieldStore считает вызовы SaveFields
type countingFieldStore struct {
	*draft.MemoryStore
	saves atomic.Int32
}

func (c *countingFieldStore) SaveFields(ctx context.Context, key string, state models.DraftState) error {
	c.saves.Add(1)
	return c.MemoryStore.SaveFields(ctx, key, state)
}

type testEnv struct {
	store     *countingFieldStore
	messages  *repository.MemoryMessageRepository
	objects   *mocks.MockObjectStore
	publisher *mocks.MockEventPublisher
	deps      Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tables, err := composer.DefaultTables()
	require.NoError(t, err)

	store := &countingFieldStore{MemoryStore: draft.NewMemoryStore()}
	env := &testEnv{
		store:     store,
		messages:  repository.NewMemoryMessageRepository(),
		objects:   &mocks.MockObjectStore{},
		publisher: &mocks.MockEventPublisher{},
	}
	env.deps = Deps{
		Fields:     store,
		Images:     store.MemoryStore,
		Normalizer: imaging.NewNormalizer(zap.NewNop()),
		Composer:   composer.NewEngine(tables, composer.NewSeededSource(7), nil, composer.Config{}, zap.NewNop()),
		Templates:  repository.NewMemoryTemplateRepository(autumnTopic),
		Objects:    env.objects,
		Messages:   env.messages,
		Publisher:  env.publisher,
		Logger:     zap.NewNop(),
	}
	return env
}

func (e *testEnv) open(t *testing.T, interval time.Duration) *Coordinator {
	t.Helper()
	c, err := Open(context.Background(), e.deps, Options{
		DraftKey:         "teacher-1:draft-1",
		TeacherID:        "teacher-1",
		DebounceInterval: interval,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

func imageFiles(names ...string) []imaging.File {
	files := make([]imaging.File, len(names))
	for i, n := range names {
		files[i] = imaging.File{Name: n, ContentType: "image/png", Data: []byte("raw-" + n)}
	}
	return files
}

func fillTemplateDraft(t *testing.T, c *Coordinator) {
	t.Helper()
	require.NoError(t, c.SetFields(map[string]string{
		models.FieldStudentID:   "student-1",
		models.FieldStudentName: "김서연",
		models.FieldStudentAge:  "9",
		models.FieldTopicID:     autumnTopic.TopicID.String(),
		models.FieldProgress:    string(models.ProgressCompleted),
	}))
}

func TestOpen_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := Open(context.Background(), env.deps, Options{TeacherID: "t"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = Open(context.Background(), env.deps, Options{DraftKey: "k"})
	assert.ErrorIs(t, err, models.ErrValidation)

	deps := env.deps
	deps.Messages = nil
	_, err = Open(context.Background(), deps, Options{DraftKey: "k", TeacherID: "t"})
	assert.Error(t, err)
}

func TestSetFields_DebouncedSinglePersist(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := newTestEnv(t)
	c := env.open(t, 40*time.Millisecond)

	for _, memo := range []string{"붓", "붓을", "붓을 잡고", "붓을 잡고 그렸어요"} {
		require.NoError(t, c.SetField(models.FieldMemo, memo))
	}

	assert.Eventually(t, func() bool { return env.store.saves.Load() == 1 }, time.Second, 5*time.Millisecond)

	state, found, err := env.store.LoadFields(context.Background(), "teacher-1:draft-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "붓을 잡고 그렸어요", state.Fields[models.FieldMemo])

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), env.store.saves.Load())

	require.NoError(t, c.SetField(models.FieldMemo, "다시"))
	assert.Eventually(t, func() bool { return env.store.saves.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestSetFields_UnknownFieldRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, time.Hour)

	err := c.SetFields(map[string]string{models.FieldMemo: "x", "favourite_color": "blue"})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Empty(t, c.Snapshot().Fields)
}

func TestOpen_RestoresDraft(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := newTestEnv(t)
	ctx := context.Background()

	saved := models.NewDraftState()
	saved.Fields[models.FieldStudentName] = "민준"
	saved.Fields[models.FieldMemo] = "물감을 섞었어요"
	require.NoError(t, env.store.MemoryStore.SaveFields(ctx, "teacher-1:draft-1", saved))
	require.NoError(t, env.store.SaveImages(ctx, "teacher-1:draft-1", []models.ImageAsset{
		{Ordinal: 1, OriginalName: "b.jpg", ContentType: "image/jpeg", Data: []byte("b")},
		{Ordinal: 0, OriginalName: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")},
	}))

	c := env.open(t, time.Hour)

	snap := c.Snapshot()
	assert.Equal(t, "민준", snap.Fields[models.FieldStudentName])
	assert.Equal(t, []models.ImageRef{
		{Ordinal: 0, OriginalName: "a.jpg", ContentType: "image/jpeg"},
		{Ordinal: 1, OriginalName: "b.jpg", ContentType: "image/jpeg"},
	}, snap.Images)
	assert.Equal(t, 2, c.HandleCount())

	asset, err := c.Preview(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), asset.Data)

	_, err = c.Preview(2)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOpen_NoSavedStateIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, time.Hour)

	assert.True(t, c.Snapshot().IsEmpty())
	assert.Equal(t, 0, c.HandleCount())
	assert.False(t, c.ExitGuard().Warn)
}

func TestOpen_PersistenceUnavailableStillWorks(t *testing.T) {
	env := newTestEnv(t)
	fields := &mocks.MockFieldStore{}
	fields.On("LoadFields", mock.Anything, mock.Anything).Return(models.DraftState{}, false, errors.New("redis down"))
	fields.On("SaveFields", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	env.deps.Fields = fields

	c := env.open(t, time.Hour)
	require.NoError(t, c.SetField(models.FieldMemo, "괜찮아요"))
	c.Close(context.Background())

	fields.AssertCalled(t, "SaveFields", mock.Anything, "teacher-1:draft-1", mock.Anything)
}

func TestAddImages_RejectsOverBoundBatch(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, time.Hour)
	ctx := context.Background()

	added, err := c.AddImages(ctx, imageFiles("a.png", "b.png", "c.png"))
	require.NoError(t, err)
	require.Len(t, added, 3)
	for i, a := range added {
		assert.Equal(t, i, a.Ref.Ordinal)
		assert.False(t, a.Normalized)
		assert.NotEmpty(t, a.Warning)
	}

	_, err = c.AddImages(ctx, imageFiles("d.png", "e.png"))
	require.ErrorIs(t, err, models.ErrTooManyImages)
	assert.ErrorIs(t, err, models.ErrValidation)

	assert.Len(t, c.Snapshot().Images, 3)
	assert.Equal(t, 3, c.HandleCount())
	stored, err := env.store.LoadImages(ctx, "teacher-1:draft-1")
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	_, err = c.AddImages(ctx, imageFiles("d.png"))
	require.NoError(t, err)
	assert.Equal(t, 4, c.HandleCount())

	_, err = c.AddImages(ctx, nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRemoveImage_RenumbersAndReleasesHandle(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, time.Hour)
	ctx := context.Background()

	_, err := c.AddImages(ctx, imageFiles("a.png", "b.png", "c.png"))
	require.NoError(t, err)

	require.NoError(t, c.RemoveImage(ctx, 1))

	snap := c.Snapshot()
	require.Len(t, snap.Images, 2)
	assert.Equal(t, "a.png", snap.Images[0].OriginalName)
	assert.Equal(t, 0, snap.Images[0].Ordinal)
	assert.Equal(t, "c.png", snap.Images[1].OriginalName)
	assert.Equal(t, 1, snap.Images[1].Ordinal)
	assert.Equal(t, 2, c.HandleCount())

	stored, err := env.store.LoadImages(ctx, "teacher-1:draft-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 1, stored[1].Ordinal)
	assert.Equal(t, []byte("raw-c.png"), stored[1].Data)

	preview, err := c.Preview(1)
	require.NoError(t, err)
	assert.Equal(t, 1, preview.Ordinal)

	assert.ErrorIs(t, c.RemoveImage(ctx, 5), models.ErrNotFound)

	require.NoError(t, c.RemoveImage(ctx, 0))
	require.NoError(t, c.RemoveImage(ctx, 0))
	assert.Equal(t, 0, c.HandleCount())
}

func TestGenerate_TemplateStoresMessage(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, time.Hour)
	fillTemplateDraft(t, c)

	res, err := c.Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "template", res.Source)
	assert.True(t, strings.HasPrefix(res.Text, "서연이는 오늘 '가을 나무' 수업에서"), res.Text)
	assert.Contains(t, res.Text, "관찰해요")
	assert.Equal(t, res.Text, c.Snapshot().Fields[models.FieldMessage])
}

func TestGenerate_FreeFormWithoutGeneratorFallsBack(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, time.Hour)
	require.NoError(t, c.SetFields(map[string]string{
		models.FieldMode:        string(models.ModeFreeForm),
		models.FieldStudentID:   "student-2",
		models.FieldStudentName: "민준",
		models.FieldSubject:     "우리 강아지",
		models.FieldMaterials:   "수채화",
		models.FieldProgress:    string(models.ProgressOngoing),
	}))

	res, err := c.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, string(composer.SourceFallback), res.Source)
	assert.Equal(t, composer.ReasonFailure, res.Reason)
	assert.Contains(t, res.Text, "민준이는 오늘 우리 강아지를 주제로")
}

func TestGenerate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"no student", map[string]string{
			models.FieldTopicID: autumnTopic.TopicID.String(), models.FieldProgress: "started",
		}},
		{"no topic", map[string]string{
			models.FieldStudentID: "s", models.FieldProgress: "started",
		}},
		{"bad topic id", map[string]string{
			models.FieldStudentID: "s", models.FieldTopicID: "topic-1", models.FieldProgress: "started",
		}},
		{"no progress", map[string]string{
			models.FieldStudentID: "s", models.FieldTopicID: autumnTopic.TopicID.String(),
		}},
		{"free-form without subject", map[string]string{
			models.FieldMode: "freeform", models.FieldStudentID: "s", models.FieldProgress: "started",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			c := env.open(t, time.Hour)
			require.NoError(t, c.SetFields(tt.fields))

			_, err := c.Generate(context.Background())
			assert.ErrorIs(t, err, models.ErrValidation)
			assert.Empty(t, c.Snapshot().Fields[models.FieldMessage])
		})
	}
}

func TestGenerate_UnknownTopic(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, time.Hour)
	require.NoError(t, c.SetFields(map[string]string{
		models.FieldStudentID: "s",
		models.FieldTopicID:   uuid.NewString(),
		models.FieldProgress:  "started",
	}))

	_, err := c.Generate(context.Background())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCommit_SuccessClearsDraft(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.open(t, time.Hour)

	fillTemplateDraft(t, c)
	_, err := c.AddImages(ctx, imageFiles("a.png", "b.png"))
	require.NoError(t, err)
	_, err = c.Generate(ctx)
	require.NoError(t, err)

	env.objects.On("Upload", mock.Anything, mock.Anything, "image/png").
		Return(func(_ context.Context, data []byte, _ string) string { return "https://cdn/" + string(data) }, nil)
	env.publisher.On("PublishMessageCommitted", mock.Anything, mock.MatchedBy(func(e models.MessageCommittedEvent) bool {
		return e.StudentID == "student-1" && e.TeacherID == "teacher-1" && e.ImageCount == 2 && e.Source == "template"
	})).Return(nil).Once()

	record, err := c.Commit(ctx)
	require.NoError(t, err)

	assert.Equal(t, "student-1", record.StudentID)
	assert.Equal(t, models.ProgressCompleted, record.Progress)
	assert.Equal(t, []string{"https://cdn/raw-a.png", "https://cdn/raw-b.png"}, record.ImageURLs)
	require.NotNil(t, record.TopicID)
	assert.Equal(t, autumnTopic.TopicID, *record.TopicID)

	assert.Equal(t, 0, c.HandleCount())
	assert.True(t, c.Snapshot().IsEmpty())
	assert.False(t, c.ExitGuard().Warn)

	_, found, err := env.store.LoadFields(ctx, "teacher-1:draft-1")
	require.NoError(t, err)
	assert.False(t, found)
	images, err := env.store.LoadImages(ctx, "teacher-1:draft-1")
	require.NoError(t, err)
	assert.Empty(t, images)

	env.objects.AssertNumberOfCalls(t, "Upload", 2)
	env.publisher.AssertExpectations(t)
}

func TestCommit_StoreFailureKeepsDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.open(t, time.Hour)

	fillTemplateDraft(t, c)
	require.NoError(t, c.SetField(models.FieldMessage, "직접 쓴 메시지"))
	_, err := c.AddImages(ctx, imageFiles("a.png"))
	require.NoError(t, err)
	before := c.Snapshot()

	env.objects.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return("https://cdn/a.png", nil)
	env.messages.FailWith(errors.New("connection reset"))

	_, err = c.Commit(ctx)
	require.ErrorIs(t, err, models.ErrCommitFailed)

	assert.Equal(t, before, c.Snapshot())
	assert.Equal(t, 1, c.HandleCount())
	assert.True(t, c.ExitGuard().Warn)
	assert.Equal(t, 0, env.messages.Count())
	env.publisher.AssertNotCalled(t, "PublishMessageCommitted", mock.Anything, mock.Anything)

	env.messages.FailWith(nil)
	env.publisher.On("PublishMessageCommitted", mock.Anything, mock.MatchedBy(func(e models.MessageCommittedEvent) bool {
		return e.Source == "manual"
	})).Return(errors.New("broker down"))

	record, err := c.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "직접 쓴 메시지", record.Message)
	assert.Equal(t, 1, env.messages.Count())
	assert.Equal(t, 0, c.HandleCount())
}

func TestCommit_UploadFailureKeepsDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.open(t, time.Hour)

	fillTemplateDraft(t, c)
	require.NoError(t, c.SetField(models.FieldMessage, "메시지"))
	_, err := c.AddImages(ctx, imageFiles("a.png", "b.png"))
	require.NoError(t, err)

	env.objects.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("disk full")).Once()

	_, err = c.Commit(ctx)
	require.ErrorIs(t, err, models.ErrCommitFailed)
	assert.Equal(t, 0, env.messages.Count())
	assert.Equal(t, 2, c.HandleCount())
	assert.Len(t, c.Snapshot().Images, 2)
}

func TestCommit_Validation(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, time.Hour)
	ctx := context.Background()

	_, err := c.Commit(ctx)
	assert.ErrorIs(t, err, models.ErrValidation)

	fillTemplateDraft(t, c)
	_, err = c.Commit(ctx)
	assert.ErrorIs(t, err, models.ErrValidation, "message is required")
	assert.Equal(t, 0, env.messages.Count())
}

func TestCommit_TwiceLeavesOneActiveRecord(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Publisher = nil
	ctx := context.Background()
	c := env.open(t, time.Hour)

	for _, text := range []string{"첫 번째", "두 번째"} {
		fillTemplateDraft(t, c)
		require.NoError(t, c.SetField(models.FieldMessage, text))
		_, err := c.Commit(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, env.messages.Count())
	active, err := env.messages.GetActiveMessage(ctx, "student-1", "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, "두 번째", active.Message)
}

func TestExitGuard(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, time.Hour)

	assert.Equal(t, ExitGuard{}, c.ExitGuard())

	require.NoError(t, c.SetField(models.FieldMemo, "메모"))
	guard := c.ExitGuard()
	assert.True(t, guard.Warn)
	assert.NotEmpty(t, guard.Message)

	require.NoError(t, c.SetField(models.FieldMemo, "  "))
	assert.False(t, c.ExitGuard().Warn)
}

func TestDiscard_ClearsEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.open(t, time.Hour)

	require.NoError(t, c.SetField(models.FieldMemo, "메모"))
	_, err := c.AddImages(ctx, imageFiles("a.png"))
	require.NoError(t, err)

	require.NoError(t, c.Discard(ctx))
	assert.Equal(t, 0, c.HandleCount())
	assert.True(t, c.Snapshot().IsEmpty())

	images, err := env.store.LoadImages(ctx, "teacher-1:draft-1")
	require.NoError(t, err)
	assert.Empty(t, images)
	assert.Equal(t, int32(0), env.store.saves.Load())
}

func TestClose_FlushesPendingSaveAndReleasesHandles(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.open(t, time.Hour)

	_, err := c.AddImages(ctx, imageFiles("a.png", "b.png"))
	require.NoError(t, err)
	require.NoError(t, c.SetField(models.FieldMemo, "닫기 전에"))

	c.Close(ctx)
	c.Close(ctx)

	assert.Equal(t, 0, c.HandleCount())
	assert.Equal(t, int32(1), env.store.saves.Load())
	state, found, err := env.store.LoadFields(ctx, "teacher-1:draft-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "닫기 전에", state.Fields[models.FieldMemo])

	assert.ErrorIs(t, c.SetField(models.FieldMemo, "x"), models.ErrSessionClosed)
	_, err = c.AddImages(ctx, imageFiles("c.png"))
	assert.ErrorIs(t, err, models.ErrSessionClosed)
	_, err = c.Commit(ctx)
	assert.ErrorIs(t, err, models.ErrSessionClosed)
}

func TestGenerate_FreeFormUsesGeneratorAndCommitsSubject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tables, err := composer.DefaultTables()
	require.NoError(t, err)

	gen := &mocks.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(req generation.Request) bool {
		return req.Name == "민준" && req.Subject == "우리 강아지" && req.Progress == models.ProgressOngoing
	})).Return("민준이는 오늘 강아지를 정성껏 그렸어요.", nil).Once()
	env.deps.Composer = composer.NewEngine(tables, composer.NewSeededSource(7), gen, composer.Config{GenerationTimeout: time.Second}, zap.NewNop())

	messages := &mocks.MockMessageStore{}
	messages.On("ReplaceActiveMessage", mock.Anything, "student-2", "teacher-1", mock.MatchedBy(func(content models.MessageContent) bool {
		return content.Subject == "우리 강아지" && content.TopicID == nil && len(content.ImageURLs) == 0
	})).Return(func(_ context.Context, studentID, teacherID string, content models.MessageContent) *models.MessageRecord {
		return &models.MessageRecord{
			ID:        uuid.New(),
			StudentID: studentID,
			TeacherID: teacherID,
			Message:   content.Message,
			Progress:  content.Progress,
			Subject:   content.Subject,
			ImageURLs: content.ImageURLs,
			CreatedAt: time.Now(),
		}
	}, nil).Once()
	env.deps.Messages = messages
	env.publisher.On("PublishMessageCommitted", mock.Anything, mock.MatchedBy(func(e models.MessageCommittedEvent) bool {
		return e.Source == "service" && e.ImageCount == 0 && e.TopicID == nil
	})).Return(nil).Once()

	c := env.open(t, time.Hour)
	require.NoError(t, c.SetFields(map[string]string{
		models.FieldMode:        string(models.ModeFreeForm),
		models.FieldStudentID:   "student-2",
		models.FieldStudentName: "민준",
		models.FieldSubject:     "우리 강아지",
		models.FieldProgress:    string(models.ProgressOngoing),
	}))

	res, err := c.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(composer.SourceService), res.Source)
	assert.Empty(t, res.Reason)
	assert.Equal(t, res.Text, c.Snapshot().Get(models.FieldMessage))

	record, err := c.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "민준이는 오늘 강아지를 정성껏 그렸어요.", record.Message)

	gen.AssertExpectations(t)
	messages.AssertExpectations(t)
	env.publisher.AssertExpectations(t)
	env.objects.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerate_TemplateStoreErrorIsReturned(t *testing.T) {
	env := newTestEnv(t)
	dbErr := errors.New("db down")
	templates := &mocks.MockTemplateStore{}
	templates.On("GetTemplate", mock.Anything, autumnTopic.TopicID).Return(nil, dbErr).Once()
	env.deps.Templates = templates

	c := env.open(t, time.Hour)
	fillTemplateDraft(t, c)

	_, err := c.Generate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, models.ErrValidation)
	assert.Empty(t, c.Snapshot().Get(models.FieldMessage))
	templates.AssertExpectations(t)
}

func TestCommit_RetryReusesUploadedImages(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Publisher = nil
	ctx := context.Background()
	c := env.open(t, time.Hour)

	fillTemplateDraft(t, c)
	require.NoError(t, c.SetField(models.FieldMessage, "메시지"))
	_, err := c.AddImages(ctx, imageFiles("a.png", "b.png"))
	require.NoError(t, err)

	env.objects.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return("https://cdn/1.png", nil).Once()
	env.objects.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return("https://cdn/2.png", nil).Once()
	env.messages.FailWith(errors.New("connection reset"))

	_, err = c.Commit(ctx)
	require.ErrorIs(t, err, models.ErrCommitFailed)

	env.messages.FailWith(nil)
	record, err := c.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/1.png", "https://cdn/2.png"}, record.ImageURLs)
	env.objects.AssertNumberOfCalls(t, "Upload", 2)
}

func TestGenerate_DraftCommittedMeanwhileDropsResult(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Publisher = nil
	ctx := context.Background()
	tables, err := composer.DefaultTables()
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	gen := &mocks.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return("늦게 도착한 문장", nil).Once()
	env.deps.Composer = composer.NewEngine(tables, composer.NewSeededSource(7), gen, composer.Config{GenerationTimeout: 5 * time.Second}, zap.NewNop())

	c := env.open(t, time.Hour)
	require.NoError(t, c.SetFields(map[string]string{
		models.FieldMode:        string(models.ModeFreeForm),
		models.FieldStudentID:   "student-2",
		models.FieldStudentName: "민준",
		models.FieldSubject:     "우리 강아지",
		models.FieldProgress:    string(models.ProgressOngoing),
		models.FieldMessage:     "직접 쓴 메시지",
	}))

	type genResult struct {
		res *GenerateResult
		err error
	}
	done := make(chan genResult, 1)
	go func() {
		res, err := c.Generate(ctx)
		done <- genResult{res: res, err: err}
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("generator was not called")
	}
	record, err := c.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "직접 쓴 메시지", record.Message)
	close(release)

	var got genResult
	select {
	case got = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("generate did not return")
	}
	require.ErrorIs(t, got.err, models.ErrDraftChanged)
	assert.Nil(t, got.res)
	assert.Empty(t, c.Snapshot().Get(models.FieldMessage))

	c.Close(ctx)
	_, found, err := env.store.LoadFields(ctx, "teacher-1:draft-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, env.messages.Count())
}

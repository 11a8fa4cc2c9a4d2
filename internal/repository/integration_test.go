package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"artnote-server/internal/database"
	"artnote-server/internal/draft"
	"artnote-server/internal/models"
	"artnote-server/internal/repository"
)

// IntegrationTestSuite поднимает PostgreSQL и Redis в контейнерах
type IntegrationTestSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	rdContainer *tcredis.RedisContainer
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	messages    *repository.PgMessageRepository
	templates   *repository.PgTemplateRepository
	fields      draft.FieldStore
	logger      *zap.Logger
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error

	s.logger, err = zap.NewDevelopment()
	require.NoError(s.T(), err)

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	pgConnStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)

	require.NoError(s.T(), database.MigrateUp(pgConnStr, s.logger), "Failed to run migrations")

	s.pgPool, err = database.Connect(s.ctx, database.PoolConfig{DSN: pgConnStr, MaxRetries: 3, RetryDelay: time.Second}, s.logger)
	require.NoError(s.T(), err, "Failed to connect to test postgres")

	s.rdContainer, err = tcredis.Run(s.ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").
				WithOccurrence(1).
				WithStartupTimeout(1*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start redis container")

	redisHost, err := s.rdContainer.Host(s.ctx)
	require.NoError(s.T(), err)
	redisPort, err := s.rdContainer.MappedPort(s.ctx, "6379/tcp")
	require.NoError(s.T(), err)

	s.redisClient = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port())})
	require.NoError(s.T(), s.redisClient.Ping(s.ctx).Err())

	txHelper := database.NewTransactionHelper(s.pgPool, s.logger)
	s.messages = repository.NewPgMessageRepository(s.pgPool, txHelper, s.logger)
	s.templates = repository.NewPgTemplateRepository(s.pgPool, s.logger)
	s.fields = draft.NewRedisFieldStore(s.redisClient, time.Hour, s.logger)
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.pgPool != nil {
		s.pgPool.Close()
	}
	if s.redisClient != nil {
		s.redisClient.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Error("Failed to terminate postgres container", zap.Error(err))
		}
	}
	if s.rdContainer != nil {
		if err := s.rdContainer.Terminate(s.ctx); err != nil {
			s.logger.Error("Failed to terminate redis container", zap.Error(err))
		}
	}
}

func (s *IntegrationTestSuite) SetupTest() {
	require.NoError(s.T(), s.redisClient.FlushDB(s.ctx).Err())
	_, err := s.pgPool.Exec(s.ctx, "TRUNCATE TABLE progress_messages, curriculum_topics")
	require.NoError(s.T(), err)
}

func TestIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Skipf("Docker client init error: %v", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		t.Skipf("Docker daemon is not running or accessible: %v", err)
	}
	cli.Close()

	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) TestReplaceActiveMessage_KeepsOneRecord() {
	t := s.T()
	topicID := uuid.New()

	first, err := s.messages.ReplaceActiveMessage(s.ctx, "student-1", "teacher-1", models.MessageContent{
		Message:   "첫 번째 메시지",
		Progress:  models.ProgressStarted,
		TopicID:   &topicID,
		ImageURLs: []string{"/images/a.jpg"},
	})
	require.NoError(t, err)

	second, err := s.messages.ReplaceActiveMessage(s.ctx, "student-1", "teacher-1", models.MessageContent{
		Message:   "두 번째 메시지",
		Progress:  models.ProgressCompleted,
		Subject:   "우리 강아지",
		ImageURLs: []string{"/images/b.jpg", "/images/c.jpg"},
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	var count int
	require.NoError(t, s.pgPool.QueryRow(s.ctx,
		"SELECT COUNT(*) FROM progress_messages WHERE student_id = $1 AND teacher_id = $2",
		"student-1", "teacher-1").Scan(&count))
	require.Equal(t, 1, count)

	active, err := s.messages.GetActiveMessage(s.ctx, "student-1", "teacher-1")
	require.NoError(t, err)
	require.Equal(t, second.ID, active.ID)
	require.Equal(t, "두 번째 메시지", active.Message)
	require.Equal(t, models.ProgressCompleted, active.Progress)
	require.Nil(t, active.TopicID)
	require.Equal(t, []string{"/images/b.jpg", "/images/c.jpg"}, active.ImageURLs)
}

func (s *IntegrationTestSuite) TestGetActiveMessage_NotFound() {
	_, err := s.messages.GetActiveMessage(s.ctx, "nobody", "teacher-1")
	require.ErrorIs(s.T(), err, models.ErrNotFound)
}

func (s *IntegrationTestSuite) TestTemplates() {
	t := s.T()
	a := models.TemplateSource{TopicID: uuid.New(), Title: "가을 나무", Guidance: "나뭇잎을 관찰합니다."}
	b := models.TemplateSource{TopicID: uuid.New(), Title: "바다", Guidance: "파도를 표현합니다."}
	require.NoError(t, s.templates.SaveTemplate(s.ctx, a))
	require.NoError(t, s.templates.SaveTemplate(s.ctx, b))

	got, err := s.templates.GetTemplate(s.ctx, a.TopicID)
	require.NoError(t, err)
	require.Equal(t, a, *got)

	list, err := s.templates.ListTemplates(s.ctx, []uuid.UUID{b.TopicID})
	require.NoError(t, err)
	require.Equal(t, []models.TemplateSource{b}, list)

	all, err := s.templates.ListTemplates(s.ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = s.templates.GetTemplate(s.ctx, uuid.New())
	require.ErrorIs(t, err, models.ErrNotFound)
}

func (s *IntegrationTestSuite) TestRedisFieldStore_RoundTrip() {
	t := s.T()
	state := models.NewDraftState()
	state.Fields[models.FieldStudentName] = "김서연"
	state.Fields[models.FieldProgress] = string(models.ProgressOngoing)
	state.Images = []models.ImageRef{{Ordinal: 0, OriginalName: "a.jpg", ContentType: "image/jpeg"}}

	require.NoError(t, s.fields.SaveFields(s.ctx, "teacher-1:draft", state))

	loaded, found, err := s.fields.LoadFields(s.ctx, "teacher-1:draft")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, state, loaded)

	ttl, err := s.redisClient.TTL(s.ctx, "draft:fields:teacher-1:draft").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	require.NoError(t, s.fields.ClearFields(s.ctx, "teacher-1:draft"))
	_, found, err = s.fields.LoadFields(s.ctx, "teacher-1:draft")
	require.NoError(t, err)
	require.False(t, found)
}

func (s *IntegrationTestSuite) TestRedisFieldStore_CorruptedValueIsNoSave() {
	t := s.T()
	require.NoError(t, s.redisClient.Set(s.ctx, "draft:fields:teacher-1:broken", "{not json", time.Hour).Err())

	loaded, found, err := s.fields.LoadFields(s.ctx, "teacher-1:broken")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, loaded.Fields)

	layer := draft.Open("teacher-1:broken", s.fields, nil, s.logger)
	_, found = layer.LoadFields(s.ctx)
	require.False(t, found)
}

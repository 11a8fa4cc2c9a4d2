// Package handler - HTTP API сеансов составления сообщений.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"artnote-server/internal/middleware"
	"artnote-server/internal/models"
	"artnote-server/internal/session"
)

// Коды ошибок API
const (
	ErrCodeValidation      = "validation_error"
	ErrCodeNotFound        = "not_found"
	ErrCodeCommitFailed    = "commit_failed"
	ErrCodeSessionClosed   = "session_closed"
	ErrCodeInternal        = "internal_error"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeTooManyImages   = "too_many_images"
	ErrCodePayloadTooLarge = "payload_too_large"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeDraftChanged    = "draft_changed"
)

var commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "artnote_http_commits_total",
	Help: "Commit requests by outcome.",
}, []string{"outcome"})

// ErrorResponse - тело ответа с ошибкой.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// TopicLister возвращает темы учебной программы.
type TopicLister interface {
	ListTemplates(ctx context.Context, ids []uuid.UUID) ([]models.TemplateSource, error)
}

// SessionHandler обслуживает /api/sessions.
type SessionHandler struct {
	manager  *session.Manager
	topics   TopicLister
	maxBytes int64
	limiter  gin.HandlerFunc
	logger   *zap.Logger
}

// DefaultMaxUploadBytes - предел размера одного загружаемого файла.
const DefaultMaxUploadBytes = 15 << 20

// NewSessionHandler создает обработчик. topics может быть nil.
func NewSessionHandler(manager *session.Manager, topics TopicLister, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		manager:  manager,
		topics:   topics,
		maxBytes: DefaultMaxUploadBytes,
		logger:   logger.Named("SessionHandler"),
	}
}

// WithGenerateRateLimit ограничивает число запросов генерации от одного
// учителя: не больше limit за rate.
func (h *SessionHandler) WithGenerateRateLimit(rate time.Duration, limit uint) *SessionHandler {
	if rate <= 0 || limit == 0 {
		h.limiter = nil
		return h
	}
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{Rate: rate, Limit: limit})
	h.limiter = ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:      ErrCodeRateLimited,
				Message:   fmt.Sprintf("Too many generation requests, try again in %s", time.Until(info.ResetTime).Round(time.Second)),
				Retryable: true,
			})
		},
		KeyFunc: func(c *gin.Context) string {
			id, _ := middleware.TeacherID(c)
			return id
		},
	})
	return h
}

// RegisterRoutes регистрирует маршруты API.
func (h *SessionHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api", middleware.RequireTeacher())
	{
		api.GET("/topics", h.listTopics)

		api.POST("/sessions", h.openSession)
		api.GET("/sessions/:id", h.getSession)
		api.DELETE("/sessions/:id", h.discardSession)
		api.POST("/sessions/:id/close", h.closeSession)
		api.PATCH("/sessions/:id/fields", h.updateFields)
		api.POST("/sessions/:id/images", h.addImages)
		api.GET("/sessions/:id/images/:ordinal", h.previewImage)
		api.DELETE("/sessions/:id/images/:ordinal", h.removeImage)
		if h.limiter != nil {
			api.POST("/sessions/:id/generate", h.limiter, h.generate)
		} else {
			api.POST("/sessions/:id/generate", h.generate)
		}
		api.POST("/sessions/:id/commit", h.commit)
	}
}

func handleServiceError(c *gin.Context, log *zap.Logger, err error) {
	var statusCode int
	var errResp ErrorResponse

	switch {
	case errors.Is(err, models.ErrTooManyImages):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: ErrCodeTooManyImages, Message: err.Error()}
	case errors.Is(err, models.ErrValidation):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: ErrCodeValidation, Message: err.Error()}
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Code: ErrCodeNotFound, Message: err.Error()}
	case errors.Is(err, models.ErrSessionClosed):
		statusCode = http.StatusGone
		errResp = ErrorResponse{Code: ErrCodeSessionClosed, Message: "Session is closed"}
	case errors.Is(err, models.ErrDraftChanged):
		statusCode = http.StatusConflict
		errResp = ErrorResponse{Code: ErrCodeDraftChanged, Message: "Draft was reset while the message was generated"}
	case errors.Is(err, models.ErrCommitFailed):
		statusCode = http.StatusServiceUnavailable
		errResp = ErrorResponse{Code: ErrCodeCommitFailed, Message: "Message could not be saved, the draft is kept", Retryable: true}
	default:
		log.Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = ErrorResponse{Code: ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: message})
}

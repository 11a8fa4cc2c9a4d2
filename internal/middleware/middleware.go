// Package middleware содержит gin middleware сервиса.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderTeacherID - заголовок, в котором шлюз передает преподавателя.
const HeaderTeacherID = "X-Teacher-ID"

const teacherIDKey = "teacher_id"

// skipLogging - пути без журнала запросов
var skipLogging = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// ZapLogger логирует запросы через zap. /health и /metrics не логируются.
func ZapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, skip := skipLogging[path]; skip {
			c.Next()
			return
		}

		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		c.Next()

		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}
		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", requestID),
		}
		if teacherID, ok := TeacherID(c); ok {
			fields = append(fields, zap.String("teacher_id", teacherID))
		}

		if len(c.Errors) > 0 {
			for _, ginErr := range c.Errors.ByType(gin.ErrorTypeAny) {
				log.Error("Request error", append(fields, zap.Error(ginErr.Err))...)
			}
			return
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("Server error", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("Client error", fields...)
		default:
			log.Info("Request completed", fields...)
		}
	}
}

// RequireTeacher отклоняет запрос без X-Teacher-ID и кладет ID в контекст.
func RequireTeacher() gin.HandlerFunc {
	return func(c *gin.Context) {
		teacherID := strings.TrimSpace(c.GetHeader(HeaderTeacherID))
		if teacherID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderTeacherID + " header"})
			return
		}
		c.Set(teacherIDKey, teacherID)
		c.Next()
	}
}

// TeacherID возвращает преподавателя, установленного RequireTeacher.
func TeacherID(c *gin.Context) (string, bool) {
	v, ok := c.Get(teacherIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

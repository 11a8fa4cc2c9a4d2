package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"artnote-server/internal/imaging"
	"artnote-server/internal/middleware"
	"artnote-server/internal/models"
	"artnote-server/internal/session"
)

type openSessionRequest struct {
	DraftKey string `json:"draft_key" binding:"required"`
}

type updateFieldsRequest struct {
	Fields map[string]string `json:"fields" binding:"required"`
}

type sessionResponse struct {
	SessionID string            `json:"session_id"`
	Draft     models.DraftState `json:"draft"`
	ExitGuard session.ExitGuard `json:"exit_guard"`
}

func teacherID(c *gin.Context) string {
	id, _ := middleware.TeacherID(c)
	return id
}

func (h *SessionHandler) coordinator(c *gin.Context) (*session.Coordinator, bool) {
	coord, err := h.manager.Get(c.Param("id"), teacherID(c))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return nil, false
	}
	return coord, true
}

func ordinalParam(c *gin.Context) (int, bool) {
	ordinal, err := strconv.Atoi(c.Param("ordinal"))
	if err != nil {
		badRequest(c, "Invalid image ordinal: "+c.Param("ordinal"))
		return 0, false
	}
	return ordinal, true
}

func respondSession(c *gin.Context, status int, coord *session.Coordinator) {
	c.JSON(status, sessionResponse{
		SessionID: coord.ID(),
		Draft:     coord.Snapshot(),
		ExitGuard: coord.ExitGuard(),
	})
}

func (h *SessionHandler) openSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request data: "+err.Error())
		return
	}
	coord, err := h.manager.Open(c.Request.Context(), req.DraftKey, teacherID(c))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	respondSession(c, http.StatusOK, coord)
}

func (h *SessionHandler) getSession(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	respondSession(c, http.StatusOK, coord)
}

func (h *SessionHandler) updateFields(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var req updateFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request data: "+err.Error())
		return
	}
	if err := coord.SetFields(req.Fields); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	respondSession(c, http.StatusOK, coord)
}

func (h *SessionHandler) addImages(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "Invalid multipart form: "+err.Error())
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		badRequest(c, "No files in field 'files'")
		return
	}

	files := make([]imaging.File, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > h.maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Code:    ErrCodePayloadTooLarge,
				Message: fmt.Sprintf("File '%s' exceeds %d bytes", fh.Filename, h.maxBytes),
			})
			return
		}
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "Cannot read file: "+fh.Filename)
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
		f.Close()
		if err != nil {
			badRequest(c, "Cannot read file: "+fh.Filename)
			return
		}
		files = append(files, imaging.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	added, err := coord.AddImages(c.Request.Context(), files)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": added, "draft": coord.Snapshot()})
}

func (h *SessionHandler) removeImage(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	ordinal, ok := ordinalParam(c)
	if !ok {
		return
	}
	if err := coord.RemoveImage(c.Request.Context(), ordinal); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	respondSession(c, http.StatusOK, coord)
}

func (h *SessionHandler) previewImage(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	ordinal, ok := ordinalParam(c)
	if !ok {
		return
	}
	asset, err := coord.Preview(ordinal)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	contentType := asset.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, asset.Data)
}

func (h *SessionHandler) generate(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	res, err := coord.Generate(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) commit(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	record, err := coord.Commit(c.Request.Context())
	if err != nil {
		commitsTotal.WithLabelValues("error").Inc()
		handleServiceError(c, h.logger, err)
		return
	}
	commitsTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusCreated, record)
}

func (h *SessionHandler) discardSession(c *gin.Context) {
	if err := h.manager.Discard(c.Request.Context(), c.Param("id"), teacherID(c)); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) closeSession(c *gin.Context) {
	if err := h.manager.Close(c.Request.Context(), c.Param("id"), teacherID(c)); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) listTopics(c *gin.Context) {
	if h.topics == nil {
		c.JSON(http.StatusOK, gin.H{"topics": []models.TemplateSource{}})
		return
	}
	var ids []uuid.UUID
	if raw := strings.TrimSpace(c.Query("ids")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				badRequest(c, "Invalid topic id: "+part)
				return
			}
			ids = append(ids, id)
		}
	}
	topics, err := h.topics.ListTemplates(c.Request.Context(), ids)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	h.logger.Debug("Topics listed", zap.Int("count", len(topics)))
	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

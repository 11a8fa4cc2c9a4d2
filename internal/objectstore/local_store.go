// Package objectstore публикует изображения сообщений.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrImageSaveFailed - файл изображения не записан.
var ErrImageSaveFailed = errors.New("image save failed")

// LocalStore сохраняет изображения в каталог, который раздается по публичному URL.
type LocalStore struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

// NewLocalStore создает хранилище и каталог для файлов.
func NewLocalStore(dir, baseURL string, logger *zap.Logger) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("image save path is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory '%s': %w", dir, err)
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("LocalStore"),
	}, nil
}

// Upload записывает файл с уникальным именем и возвращает его URL.
func (s *LocalStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty data", ErrImageSaveFailed)
	}

	fileName := uuid.NewString() + extensionFor(contentType)
	filePath := filepath.Join(s.dir, fileName)

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		s.logger.Error("Failed to save image to file", zap.String("path", filePath), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}

	url := "/" + fileName
	if s.baseURL != "" {
		url = s.baseURL + url
	}
	s.logger.Debug("Image saved", zap.String("path", filePath), zap.Int("size_bytes", len(data)))
	return url, nil
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".bin"
}

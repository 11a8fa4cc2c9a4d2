// Package generation содержит клиенты внешних генераторов текста сообщения.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"artnote-server/internal/config"
	"artnote-server/internal/models"
)

// Request - данные для генерации сообщения по свободной теме.
type Request struct {
	Name      string          `json:"name"`
	Age       int             `json:"age,omitempty"`
	Subject   string          `json:"subject"`
	Materials []string        `json:"materials"`
	Progress  models.Progress `json:"progress"`
	Memo      string          `json:"memo,omitempty"`
}

// Generator генерирует текст сообщения.
// Реализации обязаны учитывать отмену ctx.
//
//go:generate mockery --name Generator --output ../mocks --outpkg mocks --case=underscore
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// New выбирает реализацию Generator по GENERATION_BACKEND.
func New(cfg *config.Config, logger *zap.Logger) (Generator, error) {
	switch strings.ToLower(cfg.GenerationBackend) {
	case "service":
		return NewServiceClient(cfg.GenerationServiceURL, cfg.GenerationTimeout, logger), nil
	case "openai", "ollama":
		client, err := NewAIClient(AIClientConfig{
			Type:    cfg.GenerationBackend,
			BaseURL: cfg.AIBaseURL,
			APIKey:  cfg.AIAPIKey,
			Model:   cfg.AIModel,
			Timeout: cfg.GenerationTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return NewLLMGenerator(client, GenerationParams{
			MaxTokens:   &cfg.AIMaxTokens,
			Temperature: &cfg.AITemperature,
		}, logger), nil
	default:
		return nil, fmt.Errorf("неизвестный тип генератора: '%s'", cfg.GenerationBackend)
	}
}

// wrapFailure приводит ошибку генерации к одной из сентинельных.
func wrapFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrGenerationTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
}

package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Compile-time check
var _ Generator = (*ServiceClient)(nil)

type generateResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ServiceClient вызывает внутренний сервис генерации по HTTP: POST {base}/generate.
type ServiceClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewServiceClient создает клиент сервиса генерации.
func NewServiceClient(baseURL string, timeout time.Duration, logger *zap.Logger) *ServiceClient {
	return &ServiceClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("GenerationServiceClient"),
	}
}

// Generate отправляет запрос и возвращает текст из поля message.
func (c *ServiceClient) Generate(ctx context.Context, req Request) (string, error) {
	log := c.logger.With(zap.String("subject", req.Subject), zap.String("progress", string(req.Progress)))

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		aiRequestsTotal.WithLabelValues("service", "error").Inc()
		log.Warn("Generation service request failed", zap.Duration("duration", duration), zap.Error(err))
		return "", wrapFailure(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		aiRequestsTotal.WithLabelValues("service", "error").Inc()
		return "", wrapFailure(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		aiRequestsTotal.WithLabelValues("service", "error_status").Inc()
		log.Warn("Generation service returned non-OK status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(raw), 200)),
		)
		return "", wrapFailure(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		aiRequestsTotal.WithLabelValues("service", "error_decode").Inc()
		return "", wrapFailure(fmt.Errorf("failed to decode response: %w", err))
	}
	text := strings.TrimSpace(out.Message)
	if text == "" {
		aiRequestsTotal.WithLabelValues("service", "error_empty_response").Inc()
		return "", wrapFailure(fmt.Errorf("empty message in response"))
	}

	aiRequestsTotal.WithLabelValues("service", "success").Inc()
	aiRequestDuration.WithLabelValues("service").Observe(duration.Seconds())
	log.Debug("Generation service responded", zap.Duration("duration", duration), zap.Int("length", len(text)))
	return text, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

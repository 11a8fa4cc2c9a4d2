package generation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const systemPrompt = `당신은 어린이 미술 학원의 선생님입니다.
학부모에게 보낼 아이의 수업 진행 메시지를 한국어 존댓말(해요체)로 작성하세요.
3~5문장으로 따뜻하고 구체적으로 쓰고, 아이의 이름을 자연스럽게 포함하세요.
목록, 제목, 따옴표 없이 메시지 본문만 출력하세요.`

var progressLabels = map[string]string{
	"started":   "작품을 시작함",
	"ongoing":   "작품을 진행 중",
	"completed": "작품을 완성함",
}

// Compile-time check
var _ Generator = (*LLMGenerator)(nil)

// LLMGenerator генерирует сообщение через LLM API (OpenAI или Ollama).
type LLMGenerator struct {
	client AIClient
	params GenerationParams
	logger *zap.Logger
}

// NewLLMGenerator создает Generator поверх AIClient.
func NewLLMGenerator(client AIClient, params GenerationParams, logger *zap.Logger) *LLMGenerator {
	return &LLMGenerator{
		client: client,
		params: params,
		logger: logger.Named("LLMGenerator"),
	}
}

// Generate формирует промпт из запроса и возвращает ответ модели.
func (g *LLMGenerator) Generate(ctx context.Context, req Request) (string, error) {
	text, usage, err := g.client.GenerateText(ctx, systemPrompt, BuildUserInput(req), g.params)
	if err != nil {
		return "", err
	}
	g.logger.Debug("Message generated",
		zap.String("subject", req.Subject),
		zap.Int("total_tokens", usage.TotalTokens),
	)
	return text, nil
}

// BuildUserInput описывает наблюдения преподавателя для модели.
func BuildUserInput(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "아이 이름: %s\n", req.Name)
	if req.Age > 0 {
		fmt.Fprintf(&sb, "나이: %d세\n", req.Age)
	}
	fmt.Fprintf(&sb, "주제: %s\n", req.Subject)
	if len(req.Materials) > 0 {
		fmt.Fprintf(&sb, "재료: %s\n", strings.Join(req.Materials, ", "))
	}
	if label, ok := progressLabels[string(req.Progress)]; ok {
		fmt.Fprintf(&sb, "진행 상황: %s\n", label)
	}
	if memo := strings.TrimSpace(req.Memo); memo != "" {
		fmt.Fprintf(&sb, "선생님 메모: %s\n", memo)
	}
	return sb.String()
}

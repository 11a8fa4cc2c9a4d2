package composer

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"artnote-server/internal/models"
)

//go:embed phrases.yaml
var defaultPhrases []byte

// SuffixRule - замена окончания на разговорный стиль.
type SuffixRule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Triple - вариант (вступление, деталь, завершение) одного пула.
type Triple struct {
	Opening string `yaml:"opening"`
	Detail  string `yaml:"detail"`
	Closing string `yaml:"closing"`
}

// Technique - фраза о технике для материала.
type Technique struct {
	Material string `yaml:"material"`
	Phrase   string `yaml:"phrase"`
}

// Tables - все фразы, из которых собираются сообщения.
type Tables struct {
	Register         []SuffixRule                 `yaml:"register"`
	TopicSentence    TopicSentence                `yaml:"topic_sentence"`
	MemoPrefix       string                       `yaml:"memo_prefix"`
	Pools            map[models.Progress][]Triple `yaml:"pools"`
	Techniques       []Technique                  `yaml:"techniques"`
	DefaultTechnique string                       `yaml:"default_technique"`
	FreeFormSentence string                       `yaml:"freeform_sentence"`
	FreeFormClosings map[models.Progress]string   `yaml:"freeform_closings"`
	Symbols          []string                     `yaml:"symbols"`
}

// TopicSentence - форма первого предложения для младшей и старшей группы.
type TopicSentence struct {
	Young string `yaml:"young"`
	Older string `yaml:"older"`
}

// DefaultTables возвращает встроенные таблицы фраз.
func DefaultTables() (*Tables, error) {
	return ParseTables(defaultPhrases)
}

// ParseTables разбирает YAML с фразами и проверяет полноту.
func ParseTables(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse phrase tables: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tables) validate() error {
	for _, p := range models.AllProgress {
		if len(t.Pools[p]) == 0 {
			return fmt.Errorf("phrase tables: empty pool for progress '%s'", p)
		}
		if t.FreeFormClosings[p] == "" {
			return fmt.Errorf("phrase tables: missing freeform closing for progress '%s'", p)
		}
	}
	if len(t.Symbols) == 0 {
		return fmt.Errorf("phrase tables: no symbols")
	}
	if t.TopicSentence.Young == "" || t.TopicSentence.Older == "" {
		return fmt.Errorf("phrase tables: topic sentence is not set")
	}
	if t.DefaultTechnique == "" || t.FreeFormSentence == "" {
		return fmt.Errorf("phrase tables: freeform phrases are not set")
	}
	return nil
}

// TechniqueFor возвращает фразу для первого выбранного материала.
// Если он не найден в таблице, возвращается фраза по умолчанию.
func (t *Tables) TechniqueFor(materials []string) string {
	for _, m := range materials {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		for _, tech := range t.Techniques {
			if strings.Contains(m, tech.Material) {
				return tech.Phrase
			}
		}
		break
	}
	return t.DefaultTechnique
}

// Casual переводит каждое предложение текста в разговорный стиль (해요체).
// В предложении заменяется только первое совпавшее окончание.
func (t *Tables) Casual(text string) string {
	var sb strings.Builder
	start := 0
	for i, r := range text {
		if isTerminator(r) {
			sb.WriteString(t.casualClause(text[start:i]))
			sb.WriteRune(r)
			start = i + utf8.RuneLen(r)
		}
	}
	sb.WriteString(t.casualClause(text[start:]))
	return sb.String()
}

func (t *Tables) casualClause(clause string) string {
	body := strings.TrimRightFunc(clause, unicode.IsSpace)
	tail := clause[len(body):]
	for _, rule := range t.Register {
		if strings.HasSuffix(body, rule.From) {
			return strings.TrimSuffix(body, rule.From) + rule.To + tail
		}
	}
	return clause
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '\n':
		return true
	}
	return false
}

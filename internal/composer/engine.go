// Package composer собирает текст сообщения для родителей.
//
// Два пути: шаблонный (по методичке темы, полностью локальный) и свободный
// (через внешний генератор с гарантированным локальным запасным вариантом).
package composer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"artnote-server/internal/generation"
	"artnote-server/internal/particle"
)

// DefaultGenerationTimeout - сколько ждать внешний генератор.
const DefaultGenerationTimeout = 30 * time.Second

// YoungAgeLimit - верхняя граница младшей возрастной группы (включительно).
const YoungAgeLimit = 7

var compositionTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "artnote_composition_total",
		Help: "Composed messages by path and text source.",
	},
	[]string{"path", "source"},
)

// Config - настройки композера.
type Config struct {
	GenerationTimeout time.Duration
}

// Engine собирает сообщения. Безопасен для конкурентного использования,
// если RandomSource и Generator безопасны.
type Engine struct {
	tables  *Tables
	rnd     RandomSource
	gen     generation.Generator
	timeout time.Duration
	logger  *zap.Logger
}

// NewEngine создает композер. gen может быть nil: свободный путь тогда
// всегда использует локальный вариант.
func NewEngine(tables *Tables, rnd RandomSource, gen generation.Generator, cfg Config, logger *zap.Logger) *Engine {
	if rnd == nil {
		rnd = NewRandomSource()
	}
	timeout := cfg.GenerationTimeout
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &Engine{
		tables:  tables,
		rnd:     rnd,
		gen:     gen,
		timeout: timeout,
		logger:  logger.Named("Composer"),
	}
}

// IsYoung сообщает, относится ли возраст к младшей группе. 0 - возраст неизвестен.
func IsYoung(age int) bool {
	return age > 0 && age <= YoungAgeLimit
}

// nameForms возвращает формы имени. Без имени используется нейтральное обращение.
func nameForms(name string) particle.Forms {
	forms := particle.Resolve(name)
	if forms.Given == "" {
		return particle.Forms{Given: "우리 친구", Topic: "는", Possessive: "의", Subject: "가"}
	}
	return forms
}

func nameReplacer(forms particle.Forms) *strings.Replacer {
	return strings.NewReplacer(
		"{name_topic}", forms.TopicPhrase(),
		"{name_possessive}", forms.PossessivePhrase(),
		"{name_subject}", forms.SubjectPhrase(),
	)
}

// memoSentence превращает заметку преподавателя в предложение сообщения.
func (e *Engine) memoSentence(memo string) string {
	memo = strings.TrimSpace(memo)
	if memo == "" {
		return ""
	}
	memo = ensureTerminal(e.tables.Casual(memo))
	if e.tables.MemoPrefix == "" {
		return memo
	}
	return e.tables.MemoPrefix + " " + memo
}

func (e *Engine) symbol() string {
	return e.tables.Symbols[e.rnd.Intn(len(e.tables.Symbols))]
}

func ensureTerminal(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}

// joinSentences склеивает непустые предложения через пробел.
func joinSentences(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

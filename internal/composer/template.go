package composer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"artnote-server/internal/models"
)

const (
	// Предложения методички короче этого (в рунах, после обрезки) отбрасываются
	minClauseRunes = 5
	maxClauses     = 3
)

// TemplateInput - входные данные шаблонного пути.
type TemplateInput struct {
	Source   models.TemplateSource
	Name     string
	Progress models.Progress
	Memo     string
	Young    bool
}

// ComposeTemplate собирает сообщение по теме учебной программы.
// Ошибка возвращается только при некорректном вводе.
func (e *Engine) ComposeTemplate(in TemplateInput) (string, error) {
	title := strings.TrimSpace(in.Source.Title)
	if title == "" {
		return "", fmt.Errorf("%w: template title is empty", models.ErrValidation)
	}
	progress, err := models.ParseProgress(string(in.Progress))
	if err != nil {
		return "", err
	}

	forms := nameForms(in.Name)
	names := nameReplacer(forms)

	sentence := e.tables.TopicSentence.Older
	if in.Young {
		sentence = e.tables.TopicSentence.Young
	}
	topic := forms.TopicPhrase() + " " + strings.ReplaceAll(sentence, "{title}", title) + "."

	clauses := ExtractClauses(e.tables.Casual(in.Source.Guidance))

	pool := e.tables.Pools[progress]
	triple := pool[e.rnd.Intn(len(pool))]

	text := joinSentences(
		topic,
		clauses,
		names.Replace(triple.Opening),
		names.Replace(triple.Detail),
		e.memoSentence(in.Memo),
		names.Replace(triple.Closing),
	) + " " + e.symbol()

	compositionTotal.WithLabelValues("template", "local").Inc()
	e.logger.Debug("Template message composed",
		zap.String("topic_id", in.Source.TopicID.String()),
		zap.String("progress", string(progress)),
		zap.Int("length", utf8.RuneCountInString(text)),
	)
	return text, nil
}

// ExtractClauses выбирает из методички до трех содержательных предложений.
// Предложения делятся по . ! ? 。 и переводу строки, короткие отбрасываются.
// Результат - предложения через ". " с точкой в конце, либо пустая строка.
func ExtractClauses(guidance string) string {
	fields := strings.FieldsFunc(guidance, isTerminator)
	kept := make([]string, 0, maxClauses)
	for _, f := range fields {
		f = strings.TrimFunc(f, unicode.IsSpace)
		if utf8.RuneCountInString(f) <= minClauseRunes {
			continue
		}
		kept = append(kept, f)
		if len(kept) == maxClauses {
			break
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, ". ") + "."
}

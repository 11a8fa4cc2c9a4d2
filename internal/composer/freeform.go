package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"artnote-server/internal/generation"
	"artnote-server/internal/models"
	"artnote-server/internal/particle"
)

// TextSource - откуда взят текст свободного сообщения.
type TextSource string

const (
	SourceService  TextSource = "service"
	SourceFallback TextSource = "fallback"
)

// Причины перехода на локальный вариант
const (
	ReasonTimeout = "timeout"
	ReasonFailure = "failure"
)

// FreeFormInput - входные данные свободного пути.
type FreeFormInput struct {
	Name      string
	Age       int
	Subject   string
	Materials []string
	Progress  models.Progress
	Memo      string
}

// Composition - результат свободного пути.
type Composition struct {
	Text   string     `json:"text"`
	Source TextSource `json:"source"`
	Reason string     `json:"reason,omitempty"`
}

type generateOutcome struct {
	text string
	err  error
}

// ComposeFreeForm запрашивает текст у генератора с таймаутом и при любом
// отказе (ошибка, таймаут, пустой ответ) собирает сообщение локально.
// Ошибку не возвращает никогда.
func (e *Engine) ComposeFreeForm(ctx context.Context, in FreeFormInput) Composition {
	log := e.logger.With(zap.String("subject", in.Subject), zap.String("progress", string(in.Progress)))

	if e.gen == nil {
		return e.fallback(in, ReasonFailure, errors.New("generator is not configured"))
	}

	genCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := generation.Request{
		Name:      in.Name,
		Age:       in.Age,
		Subject:   in.Subject,
		Materials: in.Materials,
		Progress:  in.Progress,
		Memo:      in.Memo,
	}

	// Буфер на один результат: горутина не блокируется, даже если ответ опоздал
	done := make(chan generateOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generateOutcome{err: fmt.Errorf("%w: generator panic: %v", models.ErrGenerationFailed, r)}
			}
		}()
		text, err := e.gen.Generate(genCtx, req)
		done <- generateOutcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			reason := ReasonFailure
			if errors.Is(out.err, models.ErrGenerationTimeout) || errors.Is(out.err, context.DeadlineExceeded) {
				reason = ReasonTimeout
			}
			return e.fallback(in, reason, out.err)
		}
		text := strings.TrimSpace(out.text)
		if text == "" {
			return e.fallback(in, ReasonFailure, fmt.Errorf("%w: empty response", models.ErrGenerationFailed))
		}
		compositionTotal.WithLabelValues("freeform", string(SourceService)).Inc()
		log.Debug("Free-form message generated by service")
		return Composition{Text: text, Source: SourceService}
	case <-genCtx.Done():
		reason := ReasonFailure
		err := genCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonTimeout
			err = fmt.Errorf("%w: %v", models.ErrGenerationTimeout, err)
		}
		return e.fallback(in, reason, err)
	}
}

// Fallback собирает свободное сообщение локально, без генератора.
func (e *Engine) Fallback(in FreeFormInput) Composition {
	return e.fallback(in, ReasonFailure, errors.New("offline composition requested"))
}

func (e *Engine) fallback(in FreeFormInput, reason string, cause error) Composition {
	e.logger.Warn("Free-form generation unavailable, composing locally",
		zap.String("reason", reason),
		zap.Error(cause),
	)

	forms := nameForms(in.Name)

	subject := strings.TrimSpace(in.Subject)
	sentence := strings.NewReplacer(
		"{subject_object}", particle.Object(subject),
		"{technique}", e.tables.TechniqueFor(in.Materials),
	).Replace(e.tables.FreeFormSentence)

	closing := ""
	if progress, err := models.ParseProgress(string(in.Progress)); err == nil {
		closing = e.tables.FreeFormClosings[progress]
	}

	text := joinSentences(
		forms.TopicPhrase()+" "+sentence,
		e.memoSentence(in.Memo),
		closing,
	) + " " + e.symbol()

	compositionTotal.WithLabelValues("freeform", string(SourceFallback)).Inc()
	return Composition{Text: text, Source: SourceFallback, Reason: reason}
}

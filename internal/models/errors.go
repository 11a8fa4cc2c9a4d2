package models

import (
	"errors"
	"fmt"
)

// Стандартные ошибки сервиса
var (
	// Ресурсы
	ErrNotFound        = errors.New("resource not found")
	ErrSessionNotFound = errors.New("authoring session not found")
	ErrSessionClosed   = errors.New("authoring session is closed")
	// Черновик был записан или удален, пока шла генерация
	ErrDraftChanged = errors.New("draft changed during generation")

	// Хранилище черновика. Наружу не отдается: слой черновика деградирует до no-op.
	ErrPersistenceUnavailable = errors.New("draft persistence unavailable")

	// Сжатие изображения (на один файл, батч продолжается)
	ErrCompressionFailed = errors.New("image compression failed")

	// Генерация текста. Перехватываются композером и заменяются локальным шаблоном.
	ErrGenerationTimeout = errors.New("message generation timed out")
	ErrGenerationFailed  = errors.New("message generation failed")

	// Ошибки валидации блокируют отправку
	ErrValidation    = errors.New("validation error")
	ErrTooManyImages = fmt.Errorf("%w: too many images", ErrValidation)

	// Запись итогового сообщения отклонена. Черновик сохраняется, можно повторить.
	ErrCommitFailed = errors.New("message commit failed")
)

package models

import (
	"strconv"
	"strings"
)

// MaxDraftImages - максимальное количество изображений в одном черновике.
// Проверяется вызывающей стороной до записи в хранилище.
const MaxDraftImages = 4

// Ключи полей черновика
const (
	FieldMode        = "mode"
	FieldStudentID   = "student_id"
	FieldStudentName = "student_name"
	FieldStudentAge  = "student_age"
	FieldTopicID     = "topic_id"
	FieldTopicTitle  = "topic_title"
	FieldSubject     = "subject"
	FieldMaterials   = "materials"
	FieldProgress    = "progress"
	FieldMemo        = "memo"
	FieldMessage     = "message"
)

var knownFields = map[string]struct{}{
	FieldMode: {}, FieldStudentID: {}, FieldStudentName: {}, FieldStudentAge: {},
	FieldTopicID: {}, FieldTopicTitle: {}, FieldSubject: {}, FieldMaterials: {},
	FieldProgress: {}, FieldMemo: {}, FieldMessage: {},
}

// IsKnownField сообщает, является ли key допустимым полем черновика.
func IsKnownField(key string) bool {
	_, ok := knownFields[key]
	return ok
}

// ComposeMode определяет, каким путем собирается сообщение.
type ComposeMode string

const (
	// ModeTemplate - сообщение по теме учебной программы
	ModeTemplate ComposeMode = "template"
	// ModeFreeForm - сообщение по свободной теме через сервис генерации
	ModeFreeForm ComposeMode = "freeform"
)

// ImageRef - ссылка на изображение в черновике (без байтов).
type ImageRef struct {
	Ordinal      int    `json:"ordinal"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
}

// ImageAsset - изображение черновика вместе с данными.
type ImageAsset struct {
	Data         []byte `json:"-"`
	ContentType  string `json:"content_type"`
	OriginalName string `json:"original_name"`
	Ordinal      int    `json:"ordinal"`
}

// Ref возвращает ссылку на изображение.
func (a ImageAsset) Ref() ImageRef {
	return ImageRef{Ordinal: a.Ordinal, OriginalName: a.OriginalName, ContentType: a.ContentType}
}

// DraftState - незавершенный черновик одного сеанса.
type DraftState struct {
	Fields map[string]string `json:"fields"`
	Images []ImageRef        `json:"images"`
}

// NewDraftState создает пустой черновик.
func NewDraftState() DraftState {
	return DraftState{Fields: map[string]string{}, Images: []ImageRef{}}
}

// Clone возвращает глубокую копию черновика.
func (d DraftState) Clone() DraftState {
	out := DraftState{
		Fields: make(map[string]string, len(d.Fields)),
		Images: make([]ImageRef, len(d.Images)),
	}
	for k, v := range d.Fields {
		out.Fields[k] = v
	}
	copy(out.Images, d.Images)
	return out
}

// IsEmpty сообщает, что в черновике нет ни заполненных полей, ни изображений.
func (d DraftState) IsEmpty() bool {
	for _, v := range d.Fields {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return len(d.Images) == 0
}

// Get возвращает значение поля без пробелов по краям.
func (d DraftState) Get(key string) string {
	return strings.TrimSpace(d.Fields[key])
}

// Mode возвращает режим составления. По умолчанию - шаблон.
func (d DraftState) Mode() ComposeMode {
	if ComposeMode(d.Get(FieldMode)) == ModeFreeForm {
		return ModeFreeForm
	}
	return ModeTemplate
}

// Materials разбирает список материалов, сохраненный через запятую.
func (d DraftState) Materials() []string {
	raw := d.Get(FieldMaterials)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Age возвращает возраст ученика, 0 если не указан или некорректен.
func (d DraftState) Age() int {
	age, err := strconv.Atoi(d.Get(FieldStudentAge))
	if err != nil || age < 0 {
		return 0
	}
	return age
}

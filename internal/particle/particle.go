// Package particle подбирает корейские падежные частицы к имени ученика
// по наличию конечной согласной (받침) в последнем слоге.
package particle

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	hangulFirst = 0xAC00
	hangulLast  = 0xD7A3
	// Количество вариантов конечной согласной, включая отсутствие
	finalCount = 28
	// Имена такой длины и длиннее считаются "фамилия + имя"
	surnameStripLength = 3
)

// Forms - имя (без фамилии) и подходящие к нему частицы.
type Forms struct {
	Given      string
	Topic      string // 이는 / 는
	Possessive string // 이의 / 의
	Subject    string // 이가 / 가
}

// TopicPhrase возвращает имя с частицей темы, например "민준이는".
func (f Forms) TopicPhrase() string { return f.Given + f.Topic }

// PossessivePhrase возвращает имя с притяжательной частицей, например "지우의".
func (f Forms) PossessivePhrase() string { return f.Given + f.Possessive }

// SubjectPhrase возвращает имя с частицей подлежащего, например "서연이가".
func (f Forms) SubjectPhrase() string { return f.Given + f.Subject }

var (
	consonantForms = Forms{Topic: "이는", Possessive: "이의", Subject: "이가"}
	vowelForms     = Forms{Topic: "는", Possessive: "의", Subject: "가"}
)

// Resolve определяет формы частиц для имени.
// Для имен из трех и более символов первый символ считается фамилией и отбрасывается.
// Пустая строка и не-хангыль дают "гласные" формы.
func Resolve(name string) Forms {
	given := GivenName(name)
	forms := vowelForms
	if HasBatchim(given) {
		forms = consonantForms
	}
	forms.Given = given
	return forms
}

// GivenName возвращает ту часть имени, к которой присоединяются частицы.
func GivenName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	if utf8.RuneCountInString(name) >= surnameStripLength {
		_, size := utf8.DecodeRuneInString(name)
		return name[size:]
	}
	return name
}

// HasBatchim сообщает, заканчивается ли слово слогом хангыль с конечной согласной.
func HasBatchim(word string) bool {
	word = norm.NFC.String(strings.TrimSpace(word))
	if word == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(word)
	if last < hangulFirst || last > hangulLast {
		return false
	}
	return (last-hangulFirst)%finalCount != 0
}

// Object возвращает слово с частицей прямого дополнения (을/를).
func Object(word string) string {
	word = strings.TrimSpace(word)
	if HasBatchim(word) {
		return word + "을"
	}
	return word + "를"
}

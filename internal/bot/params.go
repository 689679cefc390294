package bot

import "strings"

type paramsKind int

const (
	paramsNone paramsKind = iota
	paramsFreeText
	paramsFields
)

// Params is the parameter portion of a parsed command. It is one of three
// shapes: absent, free text consumed positionally, or a field map produced
// by the pipe grammar.
type Params struct {
	kind   paramsKind
	text   string
	fields map[string]string
}

func NoParams() Params {
	return Params{kind: paramsNone}
}

func FreeTextParams(text string) Params {
	return Params{kind: paramsFreeText, text: text}
}

func FieldParams(fields map[string]string) Params {
	return Params{kind: paramsFields, fields: fields}
}

func (p Params) IsNone() bool {
	return p.kind == paramsNone
}

// Text returns the raw free text, or "" for the other shapes.
func (p Params) Text() string {
	if p.kind != paramsFreeText {
		return ""
	}
	return p.text
}

// FirstWord returns the first word of free text, or "".
func (p Params) FirstWord() string {
	words := strings.Fields(p.Text())
	if len(words) == 0 {
		return ""
	}
	return words[0]
}

// WordAfter returns the word following the given literal word in free text,
// or "" when the word is absent or last.
func (p Params) WordAfter(word string) string {
	words := strings.Fields(p.Text())
	for i, w := range words {
		if w == word && i+1 < len(words) {
			return words[i+1]
		}
	}
	return ""
}

// HasWord reports whether free text contains the given word.
func (p Params) HasWord(word string) bool {
	for _, w := range strings.Fields(p.Text()) {
		if w == word {
			return true
		}
	}
	return false
}

// Field returns the named field value, or "" outside field mode.
func (p Params) Field(name string) string {
	if p.kind != paramsFields {
		return ""
	}
	return p.fields[name]
}

// Lookup returns the named field in field mode, and otherwise falls back to
// the word after the name in free-text mode. Commands documented with the
// pipe grammar accept both shapes this way.
func (p Params) Lookup(name string) string {
	if p.kind == paramsFields {
		return p.fields[name]
	}
	return p.WordAfter(name)
}

package bot

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	mailtoPattern = regexp.MustCompile(`<mailto:\S+\|(\S+)>`)
	telPattern    = regexp.MustCompile(`<tel:\S+\|(\S+)>`)
)

// ParseMessage extracts (keyword, params) from a raw message addressed to
// the bot. mention is the bot's literal mention token, e.g. "<@U123>". The
// remainder after the mention is lower-cased wholesale before splitting, so
// keywords and free-text parameters are case-insensitive. ok is false when
// the message does not address the bot or carries nothing after the mention.
func ParseMessage(text, mention string) (string, Params, bool) {
	if mention == "" {
		return "", NoParams(), false
	}
	idx := strings.Index(text, mention)
	if idx < 0 {
		return "", NoParams(), false
	}
	rest := strings.ToLower(strings.TrimSpace(text[idx+len(mention):]))
	if rest == "" {
		return "", NoParams(), false
	}

	keyword, rest := splitFirstWord(rest)
	if rest == "" {
		return keyword, NoParams(), true
	}

	rest = purgeHyperlinks(rest)
	if strings.Contains(rest, "|") {
		return keyword, FieldParams(parseFields(rest)), true
	}
	return keyword, FreeTextParams(rest), true
}

// purgeHyperlinks replaces transport-wrapped email and phone tokens
// (<mailto:value|display>, <tel:value|display>) with their display portion.
// Text without wrapped tokens passes through unchanged.
func purgeHyperlinks(raw string) string {
	purged := mailtoPattern.ReplaceAllString(raw, "$1")
	return telPattern.ReplaceAllString(purged, "$1")
}

// parseFields parses the "name value | name value" grammar. Segments that do
// not split into exactly a name and a value are dropped; duplicate names
// keep the last value.
func parseFields(raw string) map[string]string {
	fields := make(map[string]string)
	for _, segment := range strings.Split(raw, "|") {
		segment = strings.TrimSpace(segment)
		name, value := splitFirstWord(segment)
		if name == "" || value == "" {
			continue
		}
		fields[name] = value
	}
	return fields
}

// splitFirstWord splits on the first whitespace run, trimming both halves.
func splitFirstWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexFunc(s, unicode.IsSpace)
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx:])
}

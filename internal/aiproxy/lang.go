package aiproxy

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/franz/xeenaps-tracer/internal/util"
)

// Language is a validated target language.
type Language struct {
	Code string // BCP 47 base, e.g. "id"
	Name string // English name, e.g. "Indonesian"
}

// ParseLanguage accepts a BCP 47 code ("id", "pt-BR") or an English
// language name ("Indonesian").
func ParseLanguage(s string) (Language, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Language{}, fmt.Errorf("language cannot be empty: %w", util.ErrInvalidInput)
	}

	tag, err := language.Parse(s)
	if err != nil {
		if byName, ok := languageByName(s); ok {
			tag = byName
		} else {
			return Language{}, fmt.Errorf("unknown language %q: %w", s, util.ErrInvalidInput)
		}
	}

	base, _ := tag.Base()
	name := display.English.Languages().Name(tag)
	if name == "" {
		name = base.String()
	}
	return Language{Code: base.String(), Name: name}, nil
}

// names the pickers offer; covers every language the UI lists
var knownLanguages = []string{
	"en", "id", "pt", "es", "de", "fr", "nl", "zh", "ja", "vi", "th", "hi", "tr", "ru", "ar",
}

func languageByName(name string) (language.Tag, bool) {
	namer := display.English.Languages()
	for _, code := range knownLanguages {
		tag := language.MustParse(code)
		if strings.EqualFold(namer.Name(tag), name) {
			return tag, true
		}
	}
	if strings.EqualFold(name, "mandarin") {
		return language.Chinese, true
	}
	return language.Tag{}, false
}

// InsightLanguages lists the targets offered for insight translation.
func InsightLanguages() []Language {
	out := make([]Language, 0, len(knownLanguages))
	for _, code := range knownLanguages {
		l, err := ParseLanguage(code)
		if err == nil {
			out = append(out, l)
		}
	}
	return out
}

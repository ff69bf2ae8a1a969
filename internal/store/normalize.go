package store

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// foldSearch lowercases, strips diacritics and collapses whitespace so that
// "Müller" and "muller" match.
func foldSearch(s string) string {
	if s == "" {
		return ""
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = norm.NFC.String(s)
	}

	folded = strings.ToLower(folded)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(folded, " "))
}

// searchText joins the searchable parts of a record into one folded string.
func searchText(parts ...string) string {
	return foldSearch(strings.Join(parts, " "))
}

// likePattern escapes LIKE wildcards in a folded search term.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(foldSearch(search)) + "%"
}

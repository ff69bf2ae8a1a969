package library

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var yearOnlyPattern = regexp.MustCompile(`^\d{4}$`)

// dateLayouts are tried in order when parsing stored dates.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02 Jan 2006",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate formats a publication date for display.
//
// Midnight timestamps and short inputs (bare years, year-month) collapse to
// the year alone; anything else renders as "02 Jan 2006". Unknown markers and
// unparseable values yield "".
func FormatDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || s == "N/A" || s == "Unknown" {
		return ""
	}
	t, ok := parseDate(s)
	if !ok {
		if yearOnlyPattern.MatchString(s) {
			return s
		}
		return ""
	}
	if strings.Contains(raw, "T00:00:00") || len(raw) < 10 {
		return strconv.Itoa(t.Year())
	}
	return t.Format("02 Jan 2006")
}

// FormatTimeMeta formats a created/updated timestamp as "02 Jan 2006 15:04",
// or "-" when missing or unparseable.
func FormatTimeMeta(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "-"
	}
	t, ok := parseDate(s)
	if !ok {
		return "-"
	}
	return t.Format("02 Jan 2006 15:04")
}

// Line joins the present venue fields with a bullet separator,
// e.g. "Nature • Vol. 12 • No. 3 • pp. 10-20".
func (p PubInfo) Line() string {
	parts := make([]string, 0, 4)
	if p.Journal != "" {
		parts = append(parts, string(p.Journal))
	}
	if p.Vol != "" {
		parts = append(parts, "Vol. "+string(p.Vol))
	}
	if p.Issue != "" {
		parts = append(parts, "No. "+string(p.Issue))
	}
	if p.Pages != "" {
		parts = append(parts, "pp. "+string(p.Pages))
	}
	return strings.Join(parts, " • ")
}

// Lines renders each present identifier with its label.
func (id Identifiers) Lines() []string {
	var out []string
	add := func(label string, v FlexString) {
		if v != "" {
			out = append(out, label+": "+string(v))
		}
	}
	add("DOI", id.DOI)
	add("ISSN", id.ISSN)
	add("ISBN", id.ISBN)
	add("PMID", id.PMID)
	add("arXiv", id.Arxiv)
	return out
}

// ListItems splits an insight field into display items.
//
// narrative is true for HTML-highlighted or long prose, which must be shown
// as one block. Otherwise the text is split on newlines, numbered markers
// ("1.", "2.") and bullets, with the markers stripped.
func ListItems(text string) (items []string, narrative bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == "N/A" {
		return nil, false
	}
	if strings.Contains(text, "<span") || strings.Contains(text, "<b") || utf8.RuneCountInString(text) > 500 {
		return nil, true
	}
	for _, piece := range splitListPieces(trimmed) {
		piece = stripListMarker(strings.TrimSpace(piece))
		if piece != "" {
			items = append(items, piece)
		}
	}
	return items, false
}

// splitListPieces breaks before every numbered marker and bullet and at
// every newline.
func splitListPieces(s string) []string {
	var pieces []string
	runes := []rune(s)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			pieces = append(pieces, string(runes[start:i]))
			start = i + 1
			continue
		}
		if i == start {
			continue
		}
		if r == '•' {
			pieces = append(pieces, string(runes[start:i]))
			start = i
			continue
		}
		if unicode.IsDigit(r) && !unicode.IsDigit(runes[i-1]) && startsNumberMarker(runes[i:]) {
			pieces = append(pieces, string(runes[start:i]))
			start = i
		}
	}
	return append(pieces, string(runes[start:]))
}

func startsNumberMarker(r []rune) bool {
	j := 0
	for j < len(r) && unicode.IsDigit(r[j]) {
		j++
	}
	// "3.5%" is a decimal, not a list marker
	if j == 0 || j >= len(r) || r[j] != '.' {
		return false
	}
	return j+1 >= len(r) || !unicode.IsDigit(r[j+1])
}

func stripListMarker(s string) string {
	if strings.HasPrefix(s, "•") {
		return strings.TrimSpace(strings.TrimPrefix(s, "•"))
	}
	j := 0
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j > 0 && j < len(s) && s[j] == '.' && (j+1 == len(s) || s[j+1] < '0' || s[j+1] > '9') {
		return strings.TrimSpace(s[j+1:])
	}
	return s
}

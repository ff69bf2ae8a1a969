package library

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	// AI output and supporting references carry inline highlight markup;
	// the UGC policy keeps that and drops scripts, handlers and iframes.
	fragmentPolicy = bluemonday.UGCPolicy()
	strictPolicy   = bluemonday.StrictPolicy()

	bareURLPattern = regexp.MustCompile(`https?://[^\s<"']+`)
)

// SanitizeHTML removes anything unsafe from an HTML fragment.
func SanitizeHTML(fragment string) string {
	return fragmentPolicy.Sanitize(fragment)
}

// PlainText strips all markup from a fragment.
func PlainText(fragment string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(fragment)))
}

// HTMLToText converts a sanitized HTML fragment into terminal-friendly
// markdown. Conversion failures fall back to plain text.
func HTMLToText(fragment string) string {
	clean := SanitizeHTML(fragment)
	md, err := htmltomarkdown.ConvertString(clean)
	if err != nil {
		return PlainText(fragment)
	}
	return strings.TrimSpace(md)
}

// ReferenceURL returns the link to visit for a supporting reference.
// Anchor hrefs win; otherwise the first bare http(s) URL is used with
// trailing punctuation trimmed.
func ReferenceURL(fragment string) string {
	if href := firstHref(fragment); href != "" {
		return href
	}
	m := bareURLPattern.FindString(fragment)
	if m == "" {
		return ""
	}
	return strings.TrimRight(m, ".,;)")
}

func firstHref(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					v := strings.TrimSpace(string(val))
					if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
						return v
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

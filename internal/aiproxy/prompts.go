package aiproxy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/franz/xeenaps-tracer/internal/library"
)

// CitationStyles lists the supported citation styles.
var CitationStyles = []string{"Harvard", "APA 7th Edition", "IEEE", "Chicago", "Vancouver", "MLA 9th Edition"}

// CitationLanguages lists the languages a citation can be written in.
var CitationLanguages = []string{"English", "Indonesian", "French", "German", "Dutch"}

// RefineMode selects how RefineField changes a value.
type RefineMode string

const (
	RefineRewrite RefineMode = "REWRITE"
	RefineExpand  RefineMode = "EXPAND"
)

// itemContext is the compact item description sent with item prompts.
type itemContext struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	Year        string   `json:"year,omitempty"`
	Type        string   `json:"type,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Journal     string   `json:"journal,omitempty"`
	Volume      string   `json:"volume,omitempty"`
	Issue       string   `json:"issue,omitempty"`
	Pages       string   `json:"pages,omitempty"`
	DOI         string   `json:"doi,omitempty"`
	ISBN        string   `json:"isbn,omitempty"`
	URL         string   `json:"url,omitempty"`
	Abstract    string   `json:"abstract,omitempty"`
	PublishedOn string   `json:"fullDate,omitempty"`
}

func contextOf(it *library.Item) string {
	c := itemContext{
		Title:       it.Title,
		Authors:     it.Authors,
		Year:        string(it.Year),
		Type:        it.Type,
		Publisher:   it.Publisher,
		Journal:     string(it.PubInfo.Journal),
		Volume:      string(it.PubInfo.Vol),
		Issue:       string(it.PubInfo.Issue),
		Pages:       string(it.PubInfo.Pages),
		DOI:         string(it.Identifiers.DOI),
		ISBN:        string(it.Identifiers.ISBN),
		URL:         it.URL,
		Abstract:    it.Abstract,
		PublishedOn: it.FullDate,
	}
	data, _ := json.Marshal(c)
	return string(data)
}

func citationPrompt(it *library.Item, style, lang string) string {
	return fmt.Sprintf(`ACT AS AN EXPERT ACADEMIC LIBRARIAN.
Format a citation for the work described below.

STYLE: %s
LANGUAGE: %s

WORK METADATA (JSON):
%s

--- RULES ---
1. Use only the metadata given. Never invent missing fields.
2. Write connecting words (e.g. "and", "et al.", "retrieved from") in the requested language.
3. RETURN ONLY RAW JSON with exactly these keys:
{"parenthetical": "...", "narrative": "...", "bibliography": "..."}`, style, lang, contextOf(it))
}

// maxContentChars bounds the extracted text sent with an insight prompt.
const maxContentChars = 24000

func insightPrompt(it *library.Item, content string) string {
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}
	if content == "" {
		content = it.Abstract
	}
	return fmt.Sprintf(`ACT AS A SENIOR RESEARCH ANALYST.
Analyse the work below and produce study notes for a graduate researcher.

WORK METADATA (JSON):
%s

CONTENT:
"""
%s
"""

--- RULES ---
1. Every field is a plain string. Use numbered points ("1. ...") for lists.
2. You may highlight key phrases with <b>...</b>. No Markdown.
3. RETURN ONLY RAW JSON with exactly these keys:
{"researchMethodology": "...", "summary": "...", "strength": "...", "weakness": "...", "unfamiliarTerminology": "...", "quickTipsForYou": "..."}`, contextOf(it), content)
}

func translatePrompt(text, lang string) string {
	return fmt.Sprintf(`TRANSLATE THE FOLLOWING TEXT TO %s.
REQUIREMENTS:
1. Maintain research/academic tone.
2. Preserve any HTML tags if present.
3. RETURN ONLY THE TRANSLATED TEXT.

TEXT:
"%s"`, lang, text)
}

// ProjectContext is the project description sent with refine prompts.
type ProjectContext struct {
	Title       string `json:"title"`
	Topic       string `json:"topic,omitempty"`
	Problem     string `json:"problem,omitempty"`
	Gap         string `json:"gap,omitempty"`
	Question    string `json:"question,omitempty"`
	Methodology string `json:"methodology,omitempty"`
	Population  string `json:"population,omitempty"`
}

func refinePrompt(field, value string, project ProjectContext, mode RefineMode) string {
	instruction := fmt.Sprintf("Please REWRITE the '%s' field. Make it more professional, concise, and scientifically aligned with the Research Context.", field)
	if mode == RefineExpand {
		instruction = fmt.Sprintf("Please EXPAND the '%s' field. Add detail, depth, and rigorous academic nuance based on the project context.", field)
	}
	ctxJSON, _ := json.Marshal(project)

	return fmt.Sprintf(`ACT AS A SENIOR RESEARCH AUDITOR.
Based on the project context below, perform the following action.

CONTEXT JSON:
%s

TARGET FIELD: "%s"
CURRENT VALUE: "%s"
ACTION: %s

INSTRUCTION: %s

--- RULES ---
1. RETURN ONLY THE NEW TEXT STRING. NO CONVERSATION.
2. STRICTLY DO NOT USE Markdown symbols.
3. LANGUAGE: English (Academic).`, ctxJSON, field, value, mode, instruction)
}

func extractQuotesPrompt(query, content string) string {
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}
	return fmt.Sprintf(`ACT AS A RESEARCH EVIDENCE ANALYST.
Locate up to 3 distinct verbatim quotes in the source text that best match the search context,
and write an academic enhancement (paraphrased, citation-ready sentence) for each.

SEARCH CONTEXT: "%s"

SOURCE TEXT:
"""
%s
"""

--- RULES ---
1. originalText must be copied verbatim from the source text.
2. RETURN ONLY A RAW JSON ARRAY:
[{"originalText": "...", "enhancedText": "..."}]`, query, content)
}

func enhanceQuotePrompt(original, citation string) string {
	return fmt.Sprintf(`ACT AS AN ACADEMIC WRITING COACH.
Rewrite the quote below as one polished, citation-ready sentence that integrates the citation.

QUOTE: "%s"
CITATION: "%s"

RETURN ONLY THE NEW SENTENCE.`, original, citation)
}

// extractJSON strips code fences and surrounding prose from a model reply
// and returns the outermost JSON object or array.
func extractJSON(reply string, open, close byte) (string, bool) {
	s := strings.TrimSpace(reply)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// cleanText trims a plain-text reply and the quotes models like to add.
func cleanText(reply string) string {
	s := strings.TrimSpace(reply)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

package aiproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/franz/xeenaps-tracer/internal/blob"
	"github.com/franz/xeenaps-tracer/internal/gateway"
	"github.com/franz/xeenaps-tracer/internal/library"
	"github.com/franz/xeenaps-tracer/internal/metrics"
	"github.com/franz/xeenaps-tracer/internal/util"
)

// Citation is a formatted citation in three forms.
type Citation struct {
	Parenthetical string `json:"parenthetical"`
	Narrative     string `json:"narrative"`
	Bibliography  string `json:"bibliography"`
}

// Insight is the generated field bundle for an item.
type Insight struct {
	ResearchMethodology   library.Text `json:"researchMethodology"`
	Summary               library.Text `json:"summary"`
	Strength              library.Text `json:"strength"`
	Weakness              library.Text `json:"weakness"`
	UnfamiliarTerminology library.Text `json:"unfamiliarTerminology"`
	QuickTipsForYou       library.Text `json:"quickTipsForYou"`
}

// Empty reports whether no field was generated.
func (in *Insight) Empty() bool {
	return in.ResearchMethodology.Empty() && in.Summary.Empty() && in.Strength.Empty() &&
		in.Weakness.Empty() && in.UnfamiliarTerminology.Empty() && in.QuickTipsForYou.Empty()
}

// QuoteCandidate is one extracted quote with its academic enhancement.
type QuoteCandidate struct {
	OriginalText string `json:"originalText"`
	EnhancedText string `json:"enhancedText"`
}

// Options configures a Service.
type Options struct {
	Model string
	// Gateway, when configured, runs quote extraction and enhancement
	// server-side where the extracted content already lives.
	Gateway *gateway.Client
	// Blobs supplies extracted content for prompts built locally.
	Blobs blob.Fetcher
}

// Service builds prompts for the library and tracer workflows and parses
// the replies.
type Service struct {
	caller Caller
	model  string
	gw     *gateway.Client
	blobs  blob.Fetcher
}

// NewService creates a prompt service on top of caller
func NewService(caller Caller, opts Options) *Service {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &Service{
		caller: caller,
		model:  model,
		gw:     opts.Gateway,
		blobs:  opts.Blobs,
	}
}

func (s *Service) call(ctx context.Context, op, prompt string) (string, error) {
	start := time.Now()
	reply, err := s.caller.Call(ctx, s.model, prompt)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = util.ErrAIEmpty
	}
	metrics.ObserveAI(op, start, err)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return reply, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// GenerateCitations formats a citation for it in the given style and language.
func (s *Service) GenerateCitations(ctx context.Context, it *library.Item, style, lang string) (*Citation, error) {
	if !contains(CitationStyles, style) {
		return nil, fmt.Errorf("unsupported citation style %q: %w", style, util.ErrInvalidInput)
	}
	if !contains(CitationLanguages, lang) {
		return nil, fmt.Errorf("unsupported citation language %q: %w", lang, util.ErrInvalidInput)
	}

	reply, err := s.call(ctx, "citation", citationPrompt(it, style, lang))
	if err != nil {
		return nil, err
	}

	raw, ok := extractJSON(reply, '{', '}')
	if !ok {
		return nil, fmt.Errorf("citation reply is not JSON: %w", util.ErrAIEmpty)
	}
	var c Citation
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("failed to decode citation: %w", err)
	}
	if c.Parenthetical == "" && c.Narrative == "" && c.Bibliography == "" {
		return nil, fmt.Errorf("citation: %w", util.ErrAIEmpty)
	}
	return &c, nil
}

// GenerateInsight produces the six insight fields for an item with
// extracted content.
func (s *Service) GenerateInsight(ctx context.Context, it *library.Item) (*Insight, error) {
	if !it.HasContent() {
		return nil, util.ErrNoContent
	}

	content := s.extractedText(ctx, it.ExtractedJSONID, it.StorageNodeURL)
	reply, err := s.call(ctx, "insight", insightPrompt(it, content))
	if err != nil {
		return nil, err
	}

	raw, ok := extractJSON(reply, '{', '}')
	if !ok {
		return nil, fmt.Errorf("insight reply is not JSON: %w", util.ErrAIEmpty)
	}
	var in Insight
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("failed to decode insight: %w", err)
	}
	if in.Empty() {
		return nil, fmt.Errorf("insight: %w", util.ErrAIEmpty)
	}
	return &in, nil
}

// TranslateSection translates one insight section of it into lang.
func (s *Service) TranslateSection(ctx context.Context, it *library.Item, section, lang string) (string, error) {
	text, ok := it.Section(section)
	if !ok {
		return "", fmt.Errorf("unknown section %q: %w", section, util.ErrInvalidInput)
	}
	if text.Empty() {
		return "", fmt.Errorf("section %s is empty: %w", section, util.ErrInvalidInput)
	}
	return s.translate(ctx, "translate_section", string(text), lang)
}

// TranslateText translates free text into lang.
func (s *Service) TranslateText(ctx context.Context, text, lang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("nothing to translate: %w", util.ErrInvalidInput)
	}
	return s.translate(ctx, "translate_text", text, lang)
}

func (s *Service) translate(ctx context.Context, op, text, lang string) (string, error) {
	l, err := ParseLanguage(lang)
	if err != nil {
		return "", err
	}
	reply, err := s.call(ctx, op, translatePrompt(text, strings.ToUpper(l.Name)))
	if err != nil {
		return "", err
	}
	return cleanText(reply), nil
}

// RefineField rewrites or expands a project field using the project as context.
func (s *Service) RefineField(ctx context.Context, field, value string, project ProjectContext, mode RefineMode) (string, error) {
	if mode != RefineRewrite && mode != RefineExpand {
		return "", fmt.Errorf("unknown refine mode %q: %w", mode, util.ErrInvalidInput)
	}
	reply, err := s.call(ctx, "refine", refinePrompt(field, value, project, mode))
	if err != nil {
		return "", err
	}
	return cleanText(reply), nil
}

// ExtractQuotes locates quotes in an item's extracted content that match
// query. An empty result is not an error.
func (s *Service) ExtractQuotes(ctx context.Context, itemID, query, blobID, nodeURL string) ([]QuoteCandidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty: %w", util.ErrInvalidInput)
	}

	start := time.Now()
	var raw json.RawMessage
	var err error
	if s.gw.Configured() {
		raw, err = s.tracerProxy(ctx, "extractQuote", map[string]string{
			"collectionId":    itemID,
			"contextQuery":    query,
			"extractedJsonId": blobID,
			"nodeUrl":         nodeURL,
		})
	} else {
		raw, err = s.extractLocally(ctx, query, blobID, nodeURL)
	}
	metrics.ObserveAI("extract_quotes", start, err)
	if err != nil {
		return nil, fmt.Errorf("extract_quotes: %w", err)
	}

	return decodeQuotes(raw), nil
}

func (s *Service) extractLocally(ctx context.Context, query, blobID, nodeURL string) (json.RawMessage, error) {
	if blobID == "" {
		return nil, util.ErrNoContent
	}
	content := s.extractedText(ctx, blobID, nodeURL)
	if content == "" {
		return nil, util.ErrNoContent
	}
	reply, err := s.caller.Call(ctx, s.model, extractQuotesPrompt(query, content))
	if err != nil {
		return nil, err
	}
	arr, ok := extractJSON(reply, '[', ']')
	if !ok {
		return nil, nil
	}
	return json.RawMessage(arr), nil
}

// decodeQuotes keeps well-formed candidates and drops the rest.
func decodeQuotes(raw json.RawMessage) []QuoteCandidate {
	if len(raw) == 0 {
		return nil
	}
	// the gateway may double-encode the array
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	var all []QuoteCandidate
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil
	}
	out := all[:0]
	for _, q := range all {
		q.OriginalText = strings.TrimSpace(q.OriginalText)
		q.EnhancedText = strings.TrimSpace(q.EnhancedText)
		if q.OriginalText == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}

// EnhanceQuote rewrites a quote into a citation-ready sentence.
func (s *Service) EnhanceQuote(ctx context.Context, original, citation string) (string, error) {
	if strings.TrimSpace(original) == "" {
		return "", fmt.Errorf("quote cannot be empty: %w", util.ErrInvalidInput)
	}
	if s.gw.Configured() {
		start := time.Now()
		raw, err := s.tracerProxy(ctx, "enhanceQuote", map[string]string{
			"originalText": original,
			"citation":     citation,
		})
		text := cleanText(rawText(raw))
		if err == nil && text == "" {
			err = util.ErrAIEmpty
		}
		metrics.ObserveAI("enhance_quote", start, err)
		if err != nil {
			return "", fmt.Errorf("enhance_quote: %w", err)
		}
		return text, nil
	}

	reply, err := s.call(ctx, "enhance_quote", enhanceQuotePrompt(original, citation))
	if err != nil {
		return "", err
	}
	return cleanText(reply), nil
}

func (s *Service) tracerProxy(ctx context.Context, sub string, payload any) (json.RawMessage, error) {
	resp, err := s.gw.Do(ctx, gateway.Request{Action: "aiTracerProxy", SubAction: sub, Payload: payload})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// contentKeys are tried in order when pulling text out of an extracted
// content payload.
var contentKeys = []string{"fullText", "extractedText", "content", "text", "chunks", "pages"}

// extractedText returns the readable text of an extracted content blob, or
// "" when unavailable. Failures are logged, not returned: prompts fall back
// to the abstract.
func (s *Service) extractedText(ctx context.Context, blobID, nodeURL string) string {
	if s.blobs == nil || blobID == "" {
		return ""
	}
	content, err := s.blobs.FetchContent(ctx, blobID, nodeURL)
	if err != nil {
		util.WarnLog("Could not load extracted content %s: %v", blobID, err)
		return ""
	}
	return ContentText(content)
}

// ContentText flattens an extracted content payload into plain text.
func ContentText(c blob.Content) string {
	for _, key := range contentKeys {
		if raw, ok := c[key]; ok {
			if text := strings.TrimSpace(flatten(raw)); text != "" {
				return text
			}
		}
	}

	// unknown layout: join every string value in key order
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		var s string
		if json.Unmarshal(c[k], &s) == nil && strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func flatten(raw json.RawMessage) string {
	var t library.Text
	if err := json.Unmarshal(raw, &t); err != nil {
		return ""
	}
	return string(t)
}

package library

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexString decodes a JSON string, number or boolean into its text form.
// Spreadsheet-backed rows routinely store "12" and 12 interchangeably.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	*f = FlexString(scalarText(data))
	return nil
}

func scalarText(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ""
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '{', '[':
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String()
	}
	if b, err := strconv.ParseBool(string(data)); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

// Text is an AI-generated field. It may be stored as a string, as an array
// of strings (joined one per line) or be null until generated.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			*t = ""
			return nil
		}
		lines := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := scalarText(p); s != "" {
				lines = append(lines, s)
			}
		}
		*t = Text(strings.Join(lines, "\n"))
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*t = ""
			return nil
		}
		*t = Text(s)
		return nil
	}
	*t = Text(scalarText(data))
	return nil
}

// Empty reports whether the field has not been generated.
func (t Text) Empty() bool {
	s := strings.TrimSpace(string(t))
	return s == "" || s == "N/A"
}

// Authors is the ordered author list. Stored rows may carry a single string.
type Authors []string

func (a *Authors) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			*a = nil
			return nil
		}
		out := make(Authors, 0, len(parts))
		for _, p := range parts {
			if s := scalarText(p); s != "" {
				out = append(out, s)
			}
		}
		*a = out
		return nil
	}
	if s := scalarText(data); s != "" {
		*a = Authors{s}
		return nil
	}
	*a = nil
	return nil
}

// String joins authors for display, falling back to "Unknown".
func (a Authors) String() string {
	text := strings.TrimSpace(strings.Join(a, ", "))
	if text == "" || text == "N/A" {
		return "Unknown"
	}
	return text
}

// PubInfo is the publication venue block.
type PubInfo struct {
	Journal FlexString `json:"journal,omitempty"`
	Vol     FlexString `json:"vol,omitempty"`
	Issue   FlexString `json:"issue,omitempty"`
	Pages   FlexString `json:"pages,omitempty"`
}

func (p *PubInfo) UnmarshalJSON(data []byte) error {
	type plain PubInfo
	var v plain
	if !decodeEmbedded(data, &v) {
		v = plain{}
	}
	*p = PubInfo(v)
	return nil
}

// Identifiers holds the persistent identifiers of a publication.
type Identifiers struct {
	DOI   FlexString `json:"doi,omitempty"`
	ISSN  FlexString `json:"issn,omitempty"`
	ISBN  FlexString `json:"isbn,omitempty"`
	PMID  FlexString `json:"pmid,omitempty"`
	Arxiv FlexString `json:"arxiv,omitempty"`
}

func (id *Identifiers) UnmarshalJSON(data []byte) error {
	type plain Identifiers
	var v plain
	if !decodeEmbedded(data, &v) {
		v = plain{}
	}
	*id = Identifiers(v)
	return nil
}

// Any reports whether at least one identifier is present.
func (id Identifiers) Any() bool {
	return id.DOI != "" || id.ISSN != "" || id.ISBN != "" || id.PMID != "" || id.Arxiv != ""
}

// Tags holds keyword and label sets. Order of first appearance is kept.
type Tags struct {
	Keywords []string `json:"keywords"`
	Labels   []string `json:"labels"`
}

func (tg *Tags) UnmarshalJSON(data []byte) error {
	var v struct {
		Keywords []FlexString `json:"keywords"`
		Labels   []FlexString `json:"labels"`
	}
	if !decodeEmbedded(data, &v) {
		*tg = Tags{Keywords: []string{}, Labels: []string{}}
		return nil
	}
	*tg = Tags{Keywords: uniqueStrings(v.Keywords), Labels: uniqueStrings(v.Labels)}
	return nil
}

func (tg Tags) MarshalJSON() ([]byte, error) {
	type plain Tags
	v := plain(tg)
	if v.Keywords == nil {
		v.Keywords = []string{}
	}
	if v.Labels == nil {
		v.Labels = []string{}
	}
	return json.Marshal(v)
}

// SupportingData lists supporting references (HTML fragments) and an
// optional explainer video.
type SupportingData struct {
	References []string `json:"references"`
	VideoURL   *string  `json:"videoUrl"`
}

func (sd *SupportingData) UnmarshalJSON(data []byte) error {
	var v struct {
		References []FlexString `json:"references"`
		VideoURL   *FlexString  `json:"videoUrl"`
	}
	if !decodeEmbedded(data, &v) {
		*sd = SupportingData{References: []string{}}
		return nil
	}
	out := SupportingData{References: make([]string, 0, len(v.References))}
	for _, r := range v.References {
		if r != "" {
			out.References = append(out.References, string(r))
		}
	}
	if v.VideoURL != nil && *v.VideoURL != "" {
		u := string(*v.VideoURL)
		out.VideoURL = &u
	}
	*sd = out
	return nil
}

func (sd SupportingData) MarshalJSON() ([]byte, error) {
	type plain SupportingData
	v := plain(sd)
	if v.References == nil {
		v.References = []string{}
	}
	return json.Marshal(v)
}

// decodeEmbedded decodes a JSON object that may itself be wrapped in a JSON
// string. It returns false for null, empty, non-object or malformed input.
func decodeEmbedded(data []byte, v any) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return false
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return false
		}
		data = bytes.TrimSpace([]byte(s))
		if len(data) == 0 {
			return false
		}
	}
	if data[0] != '{' {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func uniqueStrings(in []FlexString) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[string(s)]; ok {
			continue
		}
		seen[string(s)] = struct{}{}
		out = append(out, string(s))
	}
	return out
}

// DecodeItem is the single read-edge entry point: it turns a stored row
// payload into a typed Item.
func DecodeItem(data []byte) (Item, error) {
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return Item{}, err
	}
	return it, nil
}

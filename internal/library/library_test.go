package library

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestPubInfoFromJSONString(t *testing.T) {
	data := []byte(`{"id":"a1","pubInfo":"{\"journal\":\"Nature\",\"vol\":\"12\"}"}`)

	it, err := DecodeItem(data)
	if err != nil {
		t.Fatalf("DecodeItem failed: %v", err)
	}

	if it.PubInfo.Journal != "Nature" {
		t.Errorf("expected journal Nature, got %q", it.PubInfo.Journal)
	}
	if it.PubInfo.Vol != "12" {
		t.Errorf("expected vol 12, got %q", it.PubInfo.Vol)
	}
	if it.PubInfo.Issue != "" || it.PubInfo.Pages != "" {
		t.Errorf("expected issue and pages to be absent, got %+v", it.PubInfo)
	}
	if got := it.PubInfo.Line(); got != "Nature • Vol. 12" {
		t.Errorf("expected %q, got %q", "Nature • Vol. 12", got)
	}
}

func TestStructuredFieldsDefensiveDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, it Item)
	}{
		{
			name:    "native objects",
			payload: `{"identifiers":{"doi":"10.1/x","pmid":123},"tags":{"keywords":["a","b","a"],"labels":["x"]}}`,
			check: func(t *testing.T, it Item) {
				if it.Identifiers.DOI != "10.1/x" || it.Identifiers.PMID != "123" {
					t.Errorf("unexpected identifiers: %+v", it.Identifiers)
				}
				if !reflect.DeepEqual(it.Tags.Keywords, []string{"a", "b"}) {
					t.Errorf("expected deduplicated keywords, got %v", it.Tags.Keywords)
				}
			},
		},
		{
			name:    "malformed string falls back to defaults",
			payload: `{"tags":"{not json","supportingReferences":"[oops"}`,
			check: func(t *testing.T, it Item) {
				if it.Tags.Keywords == nil || len(it.Tags.Keywords) != 0 {
					t.Errorf("expected empty keyword set, got %#v", it.Tags.Keywords)
				}
				if len(it.SupportingReferences.References) != 0 || it.SupportingReferences.VideoURL != nil {
					t.Errorf("expected empty supporting data, got %+v", it.SupportingReferences)
				}
			},
		},
		{
			name:    "supporting data as string",
			payload: `{"supportingReferences":"{\"references\":[\"<b>Ref</b> https://a.org/x.\"],\"videoUrl\":\"https://v\"}"}`,
			check: func(t *testing.T, it Item) {
				if len(it.SupportingReferences.References) != 1 {
					t.Fatalf("expected one reference, got %v", it.SupportingReferences.References)
				}
				if it.VideoURL() != "https://v" {
					t.Errorf("expected video url, got %q", it.VideoURL())
				}
			},
		},
		{
			name:    "authors as single string",
			payload: `{"authors":"Ada Lovelace"}`,
			check: func(t *testing.T, it Item) {
				if it.Authors.String() != "Ada Lovelace" {
					t.Errorf("unexpected authors %q", it.Authors.String())
				}
			},
		},
		{
			name:    "insight as array",
			payload: `{"strength":["one","two"],"summary":null}`,
			check: func(t *testing.T, it Item) {
				if it.Strength != "one\ntwo" {
					t.Errorf("expected joined strength, got %q", it.Strength)
				}
				if !it.Summary.Empty() {
					t.Errorf("expected empty summary, got %q", it.Summary)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := DecodeItem([]byte(tt.payload))
			if err != nil {
				t.Fatalf("DecodeItem failed: %v", err)
			}
			tt.check(t, it)
		})
	}
}

func TestAuthorsString(t *testing.T) {
	tests := []struct {
		authors  Authors
		expected string
	}{
		{Authors{"A", "B"}, "A, B"},
		{nil, "Unknown"},
		{Authors{"N/A"}, "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.authors.String(); got != tt.expected {
			t.Errorf("Authors(%v).String() = %q, expected %q", []string(tt.authors), got, tt.expected)
		}
	}
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"2024-01-01T00:00:00", "2024"},
		{"2024-03-15T10:00:00", "15 Mar 2024"},
		{"2024", "2024"},
		{"2024-03", "2024"},
		{"2021-07-04", "04 Jul 2021"},
		{"N/A", ""},
		{"Unknown", ""},
		{"", ""},
		{"sometime", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := FormatDate(tt.input); got != tt.expected {
				t.Errorf("FormatDate(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatTimeMeta(t *testing.T) {
	if got := FormatTimeMeta("2024-03-15T10:05:00Z"); got != "15 Mar 2024 10:05" {
		t.Errorf("unexpected %q", got)
	}
	if got := FormatTimeMeta(""); got != "-" {
		t.Errorf("expected dash, got %q", got)
	}
	if got := FormatTimeMeta("garbage"); got != "-" {
		t.Errorf("expected dash, got %q", got)
	}
}

func TestIdentifiersLines(t *testing.T) {
	id := Identifiers{DOI: "10.1/x", Arxiv: "2401.00001"}
	expected := []string{"DOI: 10.1/x", "arXiv: 2401.00001"}
	if got := id.Lines(); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
	if (Identifiers{}).Any() {
		t.Error("expected empty identifiers to report none")
	}
}

func TestListItems(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		items     []string
		narrative bool
	}{
		{"numbered inline", "1. First point 2. Second point", []string{"First point", "Second point"}, false},
		{"newlines", "alpha\nbeta\n\n", []string{"alpha", "beta"}, false},
		{"bullets", "• one • two", []string{"one", "two"}, false},
		{"decimal kept", "Accuracy rose 3.5 points", []string{"Accuracy rose 3.5 points"}, false},
		{"highlight markup", `Uses <span class="hl">RCT</span> design`, nil, true},
		{"long prose", strings.Repeat("x", 501), nil, true},
		{"multibyte under limit", strings.Repeat("é", 300), []string{strings.Repeat("é", 300)}, false},
		{"empty", "  ", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, narrative := ListItems(tt.text)
			if narrative != tt.narrative {
				t.Errorf("narrative = %v, expected %v", narrative, tt.narrative)
			}
			if !reflect.DeepEqual(items, tt.items) {
				t.Errorf("items = %#v, expected %#v", items, tt.items)
			}
		})
	}
}

func TestReferenceURL(t *testing.T) {
	tests := []struct {
		ref      string
		expected string
	}{
		{`Smith (2020). Title. https://doi.org/10.1/abc.`, "https://doi.org/10.1/abc"},
		{`<a href="https://example.org/p">Paper</a> (see also https://other.org)`, "https://example.org/p"},
		{`No link here`, ""},
		{`(available at https://x.org/a);`, "https://x.org/a"},
	}
	for _, tt := range tests {
		if got := ReferenceURL(tt.ref); got != tt.expected {
			t.Errorf("ReferenceURL(%q) = %q, expected %q", tt.ref, got, tt.expected)
		}
	}
}

func TestSanitizeHTMLDropsScripts(t *testing.T) {
	out := SanitizeHTML(`<b>ok</b><script>alert(1)</script>`)
	if strings.Contains(out, "script") {
		t.Errorf("expected script to be removed, got %q", out)
	}
	if !strings.Contains(out, "<b>ok</b>") {
		t.Errorf("expected bold markup to survive, got %q", out)
	}
}

func TestOverlaySkipsVetoedKeysAndIdentity(t *testing.T) {
	it := Item{ID: "keep", Title: "Old", Summary: "local edit"}
	fields := map[string]json.RawMessage{
		"id":       json.RawMessage(`"other"`),
		"title":    json.RawMessage(`"New"`),
		"summary":  json.RawMessage(`"stale"`),
		"strength": json.RawMessage(`["s1","s2"]`),
		"isFavorite": json.RawMessage(`{"bad":true}`),
	}

	applied, err := Overlay(&it, fields, func(key string) bool { return key == "summary" })
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}

	if it.ID != "keep" {
		t.Errorf("identity must not change, got %q", it.ID)
	}
	if it.Title != "New" {
		t.Errorf("expected title overlay, got %q", it.Title)
	}
	if it.Summary != "local edit" {
		t.Errorf("vetoed key was overwritten: %q", it.Summary)
	}
	if it.Strength != "s1\ns2" {
		t.Errorf("expected strength overlay, got %q", it.Strength)
	}
	for _, k := range applied {
		if k == "isFavorite" {
			t.Error("undecodable key should not be reported as applied")
		}
	}
}

func TestItemMarshalRoundTripKeepsEmptySets(t *testing.T) {
	data, err := json.Marshal(Item{ID: "x"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"keywords":[]`) {
		t.Errorf("expected empty keyword array in %s", data)
	}
	if !strings.Contains(string(data), `"references":[]`) {
		t.Errorf("expected empty references array in %s", data)
	}
}

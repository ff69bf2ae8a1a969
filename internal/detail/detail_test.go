package detail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/franz/xeenaps-tracer/internal/aiproxy"
	"github.com/franz/xeenaps-tracer/internal/itemsync"
	"github.com/franz/xeenaps-tracer/internal/library"
	"github.com/franz/xeenaps-tracer/internal/util"
)

func ptr(s string) *string { return &s }

func TestBackPriority(t *testing.T) {
	tests := []struct {
		name      string
		nav       NavContext
		wantClose bool
		wantPath  string
		wantState map[string]string
	}{
		{
			name:      "empty context closes",
			nav:       NavContext{},
			wantClose: true,
		},
		{
			name: "local overlay beats everything",
			nav: NavContext{
				LocalOverlay:          true,
				ReturnToTracerProject: "p1",
				FromPath:              "/library",
			},
			wantClose: true,
		},
		{
			name: "tracer project carries reopen reference",
			nav: NavContext{
				ReturnToTracerProject: "p1",
				ReturnToRef:           "r9",
				ReturnToTeaching:      "t1",
			},
			wantPath:  "/research/tracer/p1",
			wantState: map[string]string{"reopenReference": `"r9"`},
		},
		{
			name:      "teaching defaults tab",
			nav:       NavContext{ReturnToTeaching: "t1", ReturnToAttachedQuestion: "q1"},
			wantPath:  "/teaching/t1",
			wantState: map[string]string{"activeTab": `"substance"`},
		},
		{
			name:      "teaching keeps tab and item",
			nav:       NavContext{ReturnToTeaching: "t1", ActiveTab: "logistics", TeachingItem: json.RawMessage(`{"id":"t1"}`)},
			wantPath:  "/teaching/t1",
			wantState: map[string]string{"activeTab": `"logistics"`, "item": `{"id":"t1"}`},
		},
		{
			name:      "attached question",
			nav:       NavContext{ReturnToAttachedQuestion: "t2", ReturnToPPT: json.RawMessage(`{"id":"ppt"}`)},
			wantPath:  "/teaching/t2/questions",
			wantState: map[string]string{},
		},
		{
			name:      "presentation",
			nav:       NavContext{ReturnToPPT: json.RawMessage(`{"id":"ppt"}`), ReturnToQuestion: json.RawMessage(`{"id":"q"}`)},
			wantPath:  "/presentations",
			wantState: map[string]string{"reopenPPT": `{"id":"ppt"}`},
		},
		{
			name:      "question",
			nav:       NavContext{ReturnToQuestion: json.RawMessage(`{"id":"q"}`), FromPath: "/x"},
			wantPath:  "/questions",
			wantState: map[string]string{"reopenQuestion": `{"id":"q"}`},
		},
		{
			name:     "audit of brainstorming",
			nav:      NavContext{ReturnToAudit: &Audit{ID: "a1", RoughIdea: ptr(""), ProjectName: ptr("x")}},
			wantPath: "/research/brainstorming/a1",
		},
		{
			name:     "audit of presentation",
			nav:      NavContext{ReturnToAudit: &Audit{ID: "a2", TemplateName: ptr("clean")}},
			wantPath: "/presentations",
		},
		{
			name:     "audit of research work",
			nav:      NavContext{ReturnToAudit: &Audit{ID: "a3", ProjectName: ptr("Thesis")}},
			wantPath: "/research/work/a3",
		},
		{
			name:      "audit of unknown origin closes",
			nav:       NavContext{ReturnToAudit: &Audit{ID: "a4"}, FromPath: "/library"},
			wantClose: true,
		},
		{
			name:      "from path with state",
			nav:       NavContext{FromPath: "/library", FromState: json.RawMessage(`{"page":3}`)},
			wantPath:  "/library",
			wantState: map[string]string{"page": "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.nav.Back()
			if got.Close != tt.wantClose {
				t.Fatalf("Close = %v, want %v (target %+v)", got.Close, tt.wantClose, got)
			}
			if got.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", got.Path, tt.wantPath)
			}
			if tt.wantState == nil {
				return
			}
			if len(got.State) != len(tt.wantState) {
				t.Errorf("State = %v, want %v", got.State, tt.wantState)
			}
			for k, want := range tt.wantState {
				if string(got.State[k]) != want {
					t.Errorf("State[%s] = %s, want %s", k, got.State[k], want)
				}
			}
		})
	}
}

func TestAuditDecodeKeepsPresence(t *testing.T) {
	var nav NavContext
	data := `{"returnToAudit":{"id":"a1","roughIdea":"","extra":true}}`
	if err := json.Unmarshal([]byte(data), &nav); err != nil {
		t.Fatal(err)
	}
	got := nav.Back()
	if got.Path != "/research/brainstorming/a1" {
		t.Fatalf("Path = %q", got.Path)
	}
	if !strings.Contains(string(got.State["item"]), `"extra":true`) {
		t.Errorf("audit record should round-trip, got %s", got.State["item"])
	}
}

type memStore struct {
	upserts int
	deletes int
}

func (m *memStore) UpsertItem(ctx context.Context, it *library.Item) error {
	m.upserts++
	return nil
}

func (m *memStore) DeleteItem(ctx context.Context, id string) error {
	m.deletes++
	return nil
}

func newView(t *testing.T, it library.Item, opts Options) (*View, *memStore) {
	t.Helper()
	st := &memStore{}
	s := itemsync.New(it, itemsync.Options{Store: st})
	return NewView(s, opts), st
}

func TestNavContextIsFrozen(t *testing.T) {
	nav := NavContext{FromPath: "/library", FromState: json.RawMessage(`{"page":1}`)}
	v, _ := newView(t, library.Item{ID: "i"}, Options{Nav: nav})

	nav.FromPath = "/elsewhere"
	nav.FromState[len(nav.FromState)-2] = '9'

	got := v.Back()
	if got.Path != "/library" || string(got.State["page"]) != "1" {
		t.Errorf("view saw caller mutation: %+v", got)
	}
}

func TestOpenIsExclusiveAndContentGated(t *testing.T) {
	v, _ := newView(t, library.Item{ID: "i"}, Options{})

	if err := v.Open(ViewQuestions); !errors.Is(err, util.ErrNoContent) {
		t.Errorf("expected ErrNoContent, got %v", err)
	}
	if err := v.OpenModal(ModalTracerPicker); !errors.Is(err, util.ErrNoContent) {
		t.Errorf("expected ErrNoContent for tracer picker, got %v", err)
	}
	if err := v.Open(ViewNotebook); err != nil {
		t.Fatalf("notebook needs no content: %v", err)
	}

	v2, _ := newView(t, library.Item{ID: "i", ExtractedJSONID: "e"}, Options{})
	if err := v2.Open(ViewPresentations); err != nil {
		t.Fatal(err)
	}
	if err := v2.Open(ViewConsultations); err != nil {
		t.Fatal(err)
	}
	if v2.Active() != ViewConsultations {
		t.Errorf("Active = %s, want consultations", v2.Active())
	}
	v2.CloseView()
	if v2.Active() != ViewNone {
		t.Error("CloseView should return to the record")
	}
}

type answer struct {
	ok     bool
	called bool
}

func (a *answer) Confirm(ctx context.Context, prompt string) (bool, error) {
	a.called = true
	return a.ok, nil
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	declined := &answer{ok: false}
	v, st := newView(t, library.Item{ID: "i"}, Options{Confirmer: declined})

	deleted, err := v.Delete(context.Background())
	if deleted || err != nil {
		t.Fatalf("Delete() = %v, %v", deleted, err)
	}
	if !declined.called || st.deletes != 0 {
		t.Error("declined confirmation must not delete")
	}

	accepted := &answer{ok: true}
	v, st = newView(t, library.Item{ID: "i"}, Options{Confirmer: accepted})
	deleted, err = v.Delete(context.Background())
	if !deleted || err != nil || st.deletes != 1 {
		t.Errorf("Delete() = %v, %v with %d deletes", deleted, err, st.deletes)
	}
}

type fixedCiter struct{ style, lang string }

func (f *fixedCiter) GenerateCitations(ctx context.Context, it *library.Item, style, lang string) (*aiproxy.Citation, error) {
	f.style, f.lang = style, lang
	return &aiproxy.Citation{Parenthetical: "(" + it.Authors.String() + ")"}, nil
}

func TestCiteUsesCurrentItem(t *testing.T) {
	c := &fixedCiter{}
	v, _ := newView(t, library.Item{ID: "i", Authors: library.Authors{"Doe"}}, Options{Citer: c})

	got, err := v.Cite(context.Background(), "IEEE", "German")
	if err != nil {
		t.Fatal(err)
	}
	if got.Parenthetical != "(Doe)" || c.style != "IEEE" || c.lang != "German" {
		t.Errorf("unexpected citation %+v via %+v", got, c)
	}
}

func TestToggleThroughView(t *testing.T) {
	v, st := newView(t, library.Item{ID: "i"}, Options{})
	if err := v.ToggleFavorite(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !v.Item().IsFavorite || st.upserts != 1 {
		t.Error("favorite toggle should apply and upsert")
	}
}

func TestViewLinkAndTips(t *testing.T) {
	v, _ := newView(t, library.Item{ID: "i", FileID: "abc", URL: "https://example.org"}, Options{})
	if got := v.ViewLink(); got != "https://drive.google.com/file/d/abc/view" {
		t.Errorf("ViewLink() = %q", got)
	}
	if got := v.Tips(); got != "No tips available." {
		t.Errorf("Tips() = %q", got)
	}
}

func TestRenderItem(t *testing.T) {
	now := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
	it := &library.Item{
		ID:        "i",
		Title:     "Ocean Warming",
		Authors:   library.Authors{"Jane Doe", "Ali Rahman"},
		Type:      "Journal Article",
		Category:  "Science",
		FullDate:  "2024-03-15T10:00:00",
		Publisher: "Springer",
		PubInfo:   library.PubInfo{Journal: "Nature", Vol: "12"},
		Identifiers: library.Identifiers{
			DOI: "10.1000/xyz",
		},
		Summary:  "1. Oceans warm. 2. Ice melts.",
		Strength: "<b>Robust</b> sampling across sites.",
		SupportingReferences: library.SupportingData{
			References: []string{`Smith 2020, <a href="https://doi.org/10.1/abc">link</a>`},
		},
		IsBookmarked: true,
		CreatedAt:    "2024-03-18T10:00:00Z",
	}

	var buf bytes.Buffer
	if err := RenderItem(&buf, it, now); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"[Journal Article] [Science] [bookmarked]",
		"Ocean Warming",
		"Date:       15 Mar 2024",
		"Authors:    Jane Doe, Ali Rahman",
		"Published:  Nature • Vol. 12",
		"DOI: 10.1000/xyz",
		"1. Oceans warm.",
		"2. Ice melts.",
		"**Robust** sampling",
		"Visit: https://doi.org/10.1/abc",
		"Created 18 Mar 2024 10:00 (2 days ago)",
		"Updated -",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "Weaknesses") {
		t.Error("empty sections should be omitted")
	}
}

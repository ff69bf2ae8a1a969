package detail

import (
	"bytes"
	"encoding/json"
)

// Audit is the record a detail view was opened from inside an audit
// screen. Only the presence of the optional fields matters: it tells
// which kind of record the audit belongs to.
type Audit struct {
	ID           string  `json:"id"`
	RoughIdea    *string `json:"roughIdea,omitempty"`
	GSlidesID    *string `json:"gSlidesId,omitempty"`
	TemplateName *string `json:"templateName,omitempty"`
	ProjectName  *string `json:"projectName,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON keeps the full record so it can be handed back on return.
func (a *Audit) UnmarshalJSON(data []byte) error {
	type plain Audit
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Audit(p)
	a.raw = bytes.Clone(data)
	return nil
}

// Record returns the audit as received, or a minimal encoding.
func (a *Audit) Record() json.RawMessage {
	if len(a.raw) > 0 {
		return bytes.Clone(a.raw)
	}
	data, _ := json.Marshal(a)
	return data
}

func (a *Audit) clone() *Audit {
	if a == nil {
		return nil
	}
	c := *a
	c.RoughIdea = cloneStr(a.RoughIdea)
	c.GSlidesID = cloneStr(a.GSlidesID)
	c.TemplateName = cloneStr(a.TemplateName)
	c.ProjectName = cloneStr(a.ProjectName)
	c.raw = bytes.Clone(a.raw)
	return &c
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// NavContext is the return context handed to a detail view when it opens.
// The view keeps its own copy; later changes by the caller are not seen.
type NavContext struct {
	// LocalOverlay marks a view opened on top of another screen without a
	// route of its own. Back simply closes it.
	LocalOverlay bool `json:"-"`

	ReturnToTracerProject string `json:"returnToTracerProject,omitempty"`
	ReturnToRef           string `json:"returnToRef,omitempty"`

	ReturnToTeaching string          `json:"returnToTeaching,omitempty"`
	ActiveTab        string          `json:"activeTab,omitempty"`
	TeachingItem     json.RawMessage `json:"teachingItem,omitempty"`

	ReturnToAttachedQuestion string `json:"returnToAttachedQuestion,omitempty"`

	ReturnToPPT      json.RawMessage `json:"returnToPPT,omitempty"`
	ReturnToQuestion json.RawMessage `json:"returnToQuestion,omitempty"`
	ReturnToAudit    *Audit          `json:"returnToAudit,omitempty"`

	FromPath  string          `json:"fromPath,omitempty"`
	FromState json.RawMessage `json:"fromState,omitempty"`
}

func (n NavContext) clone() NavContext {
	c := n
	c.TeachingItem = bytes.Clone(n.TeachingItem)
	c.ReturnToPPT = bytes.Clone(n.ReturnToPPT)
	c.ReturnToQuestion = bytes.Clone(n.ReturnToQuestion)
	c.ReturnToAudit = n.ReturnToAudit.clone()
	c.FromState = bytes.Clone(n.FromState)
	return c
}

func present(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) > 0 && !bytes.Equal(s, []byte("null")) && !bytes.Equal(s, []byte("false"))
}

// BackTarget is where Back leads. Close means dismiss the view in place;
// otherwise Path is navigated to, replacing the current history entry.
type BackTarget struct {
	Close bool                       `json:"close,omitempty"`
	Path  string                     `json:"path,omitempty"`
	State map[string]json.RawMessage `json:"state,omitempty"`
}

func closeTarget() BackTarget {
	return BackTarget{Close: true}
}

func str(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// Back resolves the back target from the frozen return context.
func (n NavContext) Back() BackTarget {
	if n.LocalOverlay {
		return closeTarget()
	}

	switch {
	case n.ReturnToTracerProject != "":
		return BackTarget{
			Path:  "/research/tracer/" + n.ReturnToTracerProject,
			State: map[string]json.RawMessage{"reopenReference": str(n.ReturnToRef)},
		}

	case n.ReturnToTeaching != "":
		tab := n.ActiveTab
		if tab == "" {
			tab = "substance"
		}
		state := map[string]json.RawMessage{"activeTab": str(tab)}
		if present(n.TeachingItem) {
			state["item"] = bytes.Clone(n.TeachingItem)
		}
		return BackTarget{Path: "/teaching/" + n.ReturnToTeaching, State: state}

	case n.ReturnToAttachedQuestion != "":
		state := map[string]json.RawMessage{}
		if present(n.TeachingItem) {
			state["item"] = bytes.Clone(n.TeachingItem)
		}
		return BackTarget{Path: "/teaching/" + n.ReturnToAttachedQuestion + "/questions", State: state}

	case present(n.ReturnToPPT):
		return BackTarget{
			Path:  "/presentations",
			State: map[string]json.RawMessage{"reopenPPT": bytes.Clone(n.ReturnToPPT)},
		}

	case present(n.ReturnToQuestion):
		return BackTarget{
			Path:  "/questions",
			State: map[string]json.RawMessage{"reopenQuestion": bytes.Clone(n.ReturnToQuestion)},
		}

	case n.ReturnToAudit != nil:
		return n.ReturnToAudit.back()

	case n.FromPath != "":
		t := BackTarget{Path: n.FromPath}
		if present(n.FromState) {
			var state map[string]json.RawMessage
			if json.Unmarshal(n.FromState, &state) == nil {
				t.State = state
			}
		}
		return t
	}

	return closeTarget()
}

// back infers the audited record's origin from the fields it carries.
func (a *Audit) back() BackTarget {
	switch {
	case a.RoughIdea != nil:
		return BackTarget{
			Path:  "/research/brainstorming/" + a.ID,
			State: map[string]json.RawMessage{"item": a.Record()},
		}
	case a.GSlidesID != nil || a.TemplateName != nil:
		return BackTarget{
			Path:  "/presentations",
			State: map[string]json.RawMessage{"reopenPPT": a.Record()},
		}
	case a.ProjectName != nil:
		return BackTarget{Path: "/research/work/" + a.ID}
	}
	return closeTarget()
}

package store

// Project is a research project that owns logs, references, todos and
// finance entries.
type Project struct {
	ID               string   `json:"id" validate:"required"`
	Title            string   `json:"title" validate:"required_without=Label"`
	Label            string   `json:"label,omitempty"`
	Topic            string   `json:"topic,omitempty"`
	ProblemStatement string   `json:"problemStatement,omitempty"`
	ResearchGap      string   `json:"researchGap,omitempty"`
	ResearchQuestion string   `json:"researchQuestion,omitempty"`
	Methodology      string   `json:"methodology,omitempty"`
	Population       string   `json:"population,omitempty"`
	Authors          []string `json:"authors,omitempty"`
	Status           string   `json:"status,omitempty" validate:"omitempty,oneof=draft active paused done"`
	CreatedAt        string   `json:"createdAt,omitempty"`
	UpdatedAt        string   `json:"updatedAt,omitempty"`
}

// DisplayTitle returns the title, the label, or the given fallback.
func (p *Project) DisplayTitle(fallback string) string {
	if p == nil {
		return fallback
	}
	if p.Title != "" {
		return p.Title
	}
	if p.Label != "" {
		return p.Label
	}
	return fallback
}

// Attachment is a file or link attached to a log or finance entry.
type Attachment struct {
	Label  string `json:"label,omitempty"`
	URL    string `json:"url,omitempty"`
	FileID string `json:"fileId,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Link returns the attachment URL, falling back to a drive link.
func (a Attachment) Link() string {
	if a.URL != "" {
		return a.URL
	}
	if a.FileID != "" {
		return "https://drive.google.com/file/d/" + a.FileID + "/view"
	}
	return ""
}

// Log is a dated research journal entry. Description and attachments are
// stored inline with the row.
type Log struct {
	ID          string       `json:"id" validate:"required"`
	ProjectID   string       `json:"projectId" validate:"required"`
	Title       string       `json:"title"`
	Date        string       `json:"date,omitempty"`
	Description string       `json:"description,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty" validate:"dive"`
	CreatedAt   string       `json:"createdAt,omitempty"`
	UpdatedAt   string       `json:"updatedAt,omitempty"`
}

// LogContent is the body saved together with a log.
type LogContent struct {
	Description string       `json:"description"`
	Attachments []Attachment `json:"attachments"`
}

// SavedQuote is a quote anchored to a reference. It is created by the
// quote workflow and never updated.
type SavedQuote struct {
	ID           string `json:"id" validate:"required"`
	OriginalText string `json:"originalText" validate:"required"`
	EnhancedText string `json:"enhancedText"`
	Lang         string `json:"lang" validate:"required"`
	CreatedAt    string `json:"createdAt" validate:"required"`
}

// Reference links a library item into a project. Quotes live inline.
type Reference struct {
	ID             string       `json:"id" validate:"required"`
	ProjectID      string       `json:"projectId" validate:"required"`
	CollectionID   string       `json:"collectionId" validate:"required"`
	ContentJSONID  string       `json:"contentJsonId"`
	StorageNodeURL string       `json:"storageNodeUrl"`
	Quotes         []SavedQuote `json:"quotes" validate:"dive"`
	CreatedAt      string       `json:"createdAt,omitempty"`
}

// ReferenceContent is the quote set saved onto a reference.
type ReferenceContent struct {
	Quotes []SavedQuote `json:"quotes"`
}

// Todo is a project task.
type Todo struct {
	ID          string `json:"id" validate:"required"`
	ProjectID   string `json:"projectId" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
	IsDone      bool   `json:"isDone"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// FinanceItem is one ledger line. Attachments live inline.
type FinanceItem struct {
	ID          string       `json:"id" validate:"required"`
	ProjectID   string       `json:"projectId" validate:"required"`
	Date        string       `json:"date" validate:"required"`
	Description string       `json:"description"`
	Credit      float64      `json:"credit" validate:"gte=0"`
	Debit       float64      `json:"debit" validate:"gte=0"`
	Attachments []Attachment `json:"attachments,omitempty" validate:"dive"`
	CreatedAt   string       `json:"createdAt,omitempty"`
	UpdatedAt   string       `json:"updatedAt,omitempty"`
}

// FinanceContent is the attachment set saved with a finance entry.
type FinanceContent struct {
	Attachments []Attachment `json:"attachments"`
}

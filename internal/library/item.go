// Package library holds the bibliographic item model, the typed decoding
// boundary for its loosely stored sub-objects, and display formatting.
package library

import (
	"strings"
)

// Item is a bibliographic record as stored in the metadata store.
//
// Structured sub-objects may arrive either as native JSON objects or as
// serialized JSON text. Decoding happens once, here, and malformed input
// falls back to empty defaults instead of failing the whole record.
type Item struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Authors   Authors    `json:"authors"`
	Type      string     `json:"type,omitempty"`
	Category  string     `json:"category,omitempty"`
	Topic     string     `json:"topic,omitempty"`
	SubTopic  string     `json:"subTopic,omitempty"`
	Publisher string     `json:"publisher,omitempty"`
	Abstract  string     `json:"abstract,omitempty"`
	Year      FlexString `json:"year,omitempty"`
	FullDate  string     `json:"fullDate,omitempty"`

	PubInfo              PubInfo        `json:"pubInfo"`
	Identifiers          Identifiers    `json:"identifiers"`
	Tags                 Tags           `json:"tags"`
	SupportingReferences SupportingData `json:"supportingReferences"`

	Summary               Text `json:"summary,omitempty"`
	Strength              Text `json:"strength,omitempty"`
	Weakness              Text `json:"weakness,omitempty"`
	UnfamiliarTerminology Text `json:"unfamiliarTerminology,omitempty"`
	QuickTipsForYou       Text `json:"quickTipsForYou,omitempty"`
	ResearchMethodology   Text `json:"researchMethodology,omitempty"`

	InsightJSONID   string `json:"insightJsonId,omitempty"`
	ExtractedJSONID string `json:"extractedJsonId,omitempty"`
	StorageNodeURL  string `json:"storageNodeUrl,omitempty"`

	FileID    string `json:"fileId,omitempty"`
	URL       string `json:"url,omitempty"`
	YoutubeID string `json:"youtubeId,omitempty"`

	IsBookmarked bool `json:"isBookmarked"`
	IsFavorite   bool `json:"isFavorite"`

	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Insight section names. They double as the JSON keys of the fields.
const (
	SectionSummary               = "summary"
	SectionStrength              = "strength"
	SectionWeakness              = "weakness"
	SectionUnfamiliarTerminology = "unfamiliarTerminology"
	SectionQuickTips             = "quickTipsForYou"
	SectionResearchMethodology   = "researchMethodology"
)

// InsightSections lists every translatable insight field.
var InsightSections = []string{
	SectionResearchMethodology,
	SectionSummary,
	SectionStrength,
	SectionWeakness,
	SectionUnfamiliarTerminology,
	SectionQuickTips,
}

// IsInsightSection reports whether name is a known insight section.
func IsInsightSection(name string) bool {
	for _, s := range InsightSections {
		if s == name {
			return true
		}
	}
	return false
}

// Section returns the text of the named insight field.
func (it *Item) Section(name string) (Text, bool) {
	switch name {
	case SectionSummary:
		return it.Summary, true
	case SectionStrength:
		return it.Strength, true
	case SectionWeakness:
		return it.Weakness, true
	case SectionUnfamiliarTerminology:
		return it.UnfamiliarTerminology, true
	case SectionQuickTips:
		return it.QuickTipsForYou, true
	case SectionResearchMethodology:
		return it.ResearchMethodology, true
	}
	return "", false
}

// SetSection replaces the named insight field. Unknown names are ignored.
func (it *Item) SetSection(name string, value Text) bool {
	switch name {
	case SectionSummary:
		it.Summary = value
	case SectionStrength:
		it.Strength = value
	case SectionWeakness:
		it.Weakness = value
	case SectionUnfamiliarTerminology:
		it.UnfamiliarTerminology = value
	case SectionQuickTips:
		it.QuickTipsForYou = value
	case SectionResearchMethodology:
		it.ResearchMethodology = value
	default:
		return false
	}
	return true
}

// HasContent reports whether the item has extracted content, which gates
// insight generation, quote extraction and the content-backed sub-views.
func (it *Item) HasContent() bool {
	return strings.TrimSpace(it.ExtractedJSONID) != ""
}

// HasStoredInsights reports whether a larger insight bundle lives in the blob store.
func (it *Item) HasStoredInsights() bool {
	return strings.TrimSpace(it.InsightJSONID) != ""
}

// DisplayDate returns the formatted publication date, preferring the full date.
func (it *Item) DisplayDate() string {
	if it.FullDate != "" {
		return FormatDate(it.FullDate)
	}
	return FormatDate(string(it.Year))
}

// ViewLink returns the link used to open the source document, if any.
func (it *Item) ViewLink() string {
	if it.FileID != "" {
		return "https://drive.google.com/file/d/" + it.FileID + "/view"
	}
	return it.URL
}

// VideoURL returns the embedded video, preferring the item's own YouTube id.
func (it *Item) VideoURL() string {
	if it.YoutubeID != "" {
		return it.YoutubeID
	}
	if it.SupportingReferences.VideoURL != nil {
		return *it.SupportingReferences.VideoURL
	}
	return ""
}

// Tips returns the quick tips text shown in the tips dialog.
func (it *Item) Tips() string {
	if strings.TrimSpace(string(it.QuickTipsForYou)) == "" {
		return "No tips available."
	}
	return string(it.QuickTipsForYou)
}

// Clone returns a deep copy so callers can mutate it without touching
// shared slices.
func (it Item) Clone() Item {
	out := it
	out.Authors = append(Authors(nil), it.Authors...)
	out.Tags.Keywords = append([]string(nil), it.Tags.Keywords...)
	out.Tags.Labels = append([]string(nil), it.Tags.Labels...)
	out.SupportingReferences.References = append([]string(nil), it.SupportingReferences.References...)
	if it.SupportingReferences.VideoURL != nil {
		v := *it.SupportingReferences.VideoURL
		out.SupportingReferences.VideoURL = &v
	}
	return out
}

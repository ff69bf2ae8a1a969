package detail

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/franz/xeenaps-tracer/internal/library"
)

var sectionLabels = []struct {
	name  string
	label string
}{
	{library.SectionResearchMethodology, "Research Methodology"},
	{library.SectionSummary, "Summary"},
	{library.SectionStrength, "Strengths"},
	{library.SectionWeakness, "Weaknesses"},
	{library.SectionUnfamiliarTerminology, "Unfamiliar Terminology"},
}

// Render writes the record view of the item as terminal text.
func (v *View) Render(w io.Writer) error {
	it := v.sync.Current()
	return RenderItem(w, &it, time.Now())
}

// RenderItem writes the record view of it. now anchors relative times.
func RenderItem(w io.Writer, it *library.Item, now time.Time) error {
	b := bufio.NewWriter(w)

	var chips []string
	for _, c := range []string{it.Type, it.Category, it.Topic, it.SubTopic} {
		if c != "" {
			chips = append(chips, "["+c+"]")
		}
	}
	if it.IsBookmarked {
		chips = append(chips, "[bookmarked]")
	}
	if it.IsFavorite {
		chips = append(chips, "[favorite]")
	}
	if len(chips) > 0 {
		fmt.Fprintln(b, strings.Join(chips, " "))
	}

	title := it.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintln(b, title)
	fmt.Fprintln(b, strings.Repeat("=", min(len([]rune(title)), 72)))

	if d := it.DisplayDate(); d != "" {
		fmt.Fprintf(b, "Date:       %s\n", d)
	}
	fmt.Fprintf(b, "Authors:    %s\n", it.Authors.String())
	if it.Publisher != "" {
		fmt.Fprintf(b, "Publisher:  %s\n", it.Publisher)
	}
	if line := it.PubInfo.Line(); line != "" {
		fmt.Fprintf(b, "Published:  %s\n", line)
	}
	for _, line := range it.Identifiers.Lines() {
		fmt.Fprintf(b, "  %s\n", line)
	}
	if len(it.Tags.Keywords) > 0 {
		fmt.Fprintf(b, "Keywords:   %s\n", strings.Join(it.Tags.Keywords, ", "))
	}
	if len(it.Tags.Labels) > 0 {
		fmt.Fprintf(b, "Labels:     %s\n", strings.Join(it.Tags.Labels, ", "))
	}
	if link := it.ViewLink(); link != "" {
		fmt.Fprintf(b, "Source:     %s\n", link)
	}

	if it.Abstract != "" {
		fmt.Fprintf(b, "\nAbstract\n--------\n%s\n", library.HTMLToText(it.Abstract))
	}

	for _, s := range sectionLabels {
		text, _ := it.Section(s.name)
		writeSection(b, s.label, text)
	}
	if !it.QuickTipsForYou.Empty() {
		writeSection(b, "Quick Tips", it.QuickTipsForYou)
	}

	if refs := it.SupportingReferences.References; len(refs) > 0 {
		fmt.Fprintf(b, "\nSupporting References\n---------------------\n")
		for i, ref := range refs {
			fmt.Fprintf(b, "%d. %s\n", i+1, library.HTMLToText(ref))
			if url := library.ReferenceURL(ref); url != "" {
				fmt.Fprintf(b, "   Visit: %s\n", url)
			}
		}
	}
	if video := it.VideoURL(); video != "" {
		fmt.Fprintf(b, "\nVideo: %s\n", video)
	}

	fmt.Fprintf(b, "\nCreated %s  Updated %s\n", timeMeta(it.CreatedAt, now), timeMeta(it.UpdatedAt, now))
	return b.Flush()
}

func writeSection(b *bufio.Writer, label string, text library.Text) {
	if text.Empty() {
		return
	}
	fmt.Fprintf(b, "\n%s\n%s\n", label, strings.Repeat("-", len(label)))

	items, narrative := library.ListItems(string(text))
	if narrative {
		fmt.Fprintln(b, library.HTMLToText(string(text)))
		return
	}
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, library.PlainText(item))
	}
}

// timeMeta shows the absolute timestamp with a relative hint.
func timeMeta(raw string, now time.Time) string {
	abs := library.FormatTimeMeta(raw)
	if abs == "-" {
		return abs
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return abs
	}
	return fmt.Sprintf("%s (%s)", abs, humanize.RelTime(t, now, "ago", "from now"))
}

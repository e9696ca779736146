// Package render turns a draft into plain-text documents for mail delivery
// and folder upload: the minutes document itself and the design checklist
// attached when a draft is approved. Lines wrap on display columns so CJK
// text breaks at the same visual width as ASCII.
package render

import (
	"fmt"
	"strings"
	"time"

	"minuteman/internal/minutes"
)

const wrapColumns = 80

var minutesSections = []struct {
	label   string
	section func(minutes.Draft) string
}{
	{"Summary", func(d minutes.Draft) string { return d.Summary }},
	{"Decision", func(d minutes.Draft) string { return d.Decisions }},
	{"Action", func(d minutes.Draft) string { return d.Actions }},
	{"Issue", func(d minutes.Draft) string { return d.Issues }},
	{"Risk", func(d minutes.Draft) string { return d.Risks }},
}

// Minutes renders the minutes document.
func Minutes(draft minutes.Draft, generatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "議事録：%s\n", draft.DisplayTitle())
	if strings.TrimSpace(draft.DateTime) != "" {
		fmt.Fprintf(&b, "日時：%s\n", strings.TrimSpace(draft.DateTime))
	}
	if strings.TrimSpace(draft.Participants) != "" {
		fmt.Fprintf(&b, "参加者：%s\n", strings.TrimSpace(draft.Participants))
	}
	if strings.TrimSpace(draft.Purpose) != "" {
		fmt.Fprintf(&b, "目的：%s\n", strings.TrimSpace(draft.Purpose))
	}
	b.WriteString("\n")

	for _, section := range minutesSections {
		fmt.Fprintf(&b, "%s:\n", section.label)
		for _, line := range WrapCJK(section.section(draft), wrapColumns) {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Generated at: %s\n", generatedAt.Format("2006-01-02 15:04:05"))
	return b.String()
}

// MinutesFileName is the attachment and upload name for a draft's document.
func MinutesFileName(draft minutes.Draft) string {
	return fmt.Sprintf("議事録_%s.txt", sanitizeFileName(draft.DisplayTitle()))
}

// ChecklistFileName is the attachment name for the design checklist.
func ChecklistFileName(draft minutes.Draft) string {
	return fmt.Sprintf("%s_design_checklist.txt", sanitizeFileName(draft.DisplayTitle()))
}

func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(strings.TrimSpace(name))
}

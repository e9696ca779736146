package minutes

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Draft carries every section of a summarized meeting. Section bodies are
// plain text; list-valued sections use one `・` bullet per line.
type Draft struct {
	ID           string `json:"id,omitempty"`
	FileID       string `json:"file_id,omitempty"`
	Title        string `json:"title"`
	MeetingName  string `json:"meeting_name"`
	DateTime     string `json:"datetime_str"`
	Participants string `json:"participants"`
	Purpose      string `json:"purpose"`
	Summary      string `json:"summary"`
	Decisions    string `json:"decisions"`
	Actions      string `json:"actions"`
	Issues       string `json:"issues"`
	Risks        string `json:"risks"`
}

// DisplayTitle prefers the explicit title, then the meeting name, then a
// generic fallback.
func (d Draft) DisplayTitle() string {
	if strings.TrimSpace(d.Title) != "" {
		return strings.TrimSpace(d.Title)
	}
	if strings.TrimSpace(d.MeetingName) != "" {
		return strings.TrimSpace(d.MeetingName)
	}
	return "議事録"
}

// Tasks parses the actions section into structured action items.
func (d Draft) Tasks() []Task {
	return ParseTasks(d.Actions)
}

// Encode serializes the draft body for persistence.
func (d Draft) Encode() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode draft: %w", err)
	}
	return string(data), nil
}

// DecodeDraft restores a draft body from its persisted form.
func DecodeDraft(content string) (Draft, error) {
	var draft Draft
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		return Draft{}, fmt.Errorf("decode draft: %w", err)
	}
	return draft, nil
}

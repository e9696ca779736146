package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"minuteman/internal/minutes"
	"minuteman/internal/services"
)

const summarySystemPrompt = `You are a meeting minutes assistant. Analyze the transcript and return JSON with the following structure:

Required fields (extract from transcript or infer):
- meeting_name: Meeting title or topic (extract if mentioned, otherwise use first few sentences)
- datetime_str: Date and time if available in transcript, otherwise leave empty
- participants: List of participants mentioned (convert to string: "name1, name2, ...")
- purpose: Meeting purpose or agenda
- summary: Overall summary of the meeting (important - this should be a comprehensive paragraph)
- decisions: Decisions made during the meeting (use bullet points with "・" prefix for multiple items)
- actions: Action items extracted from transcript - MUST identify tasks mentioned even if assignee/date not specified.
  Format each as: "・task_description（担当：person_name、期限：estimated_date）"
  If no assignee mentioned, infer from context or use "担当：未定"
  If no date mentioned, estimate reasonable deadline or use "期限：未定"
- issues: Open issues or concerns that remain unresolved (use bullet points with "・" prefix)
- risks: Identified risks, challenges, or potential problems (use bullet points with "・" prefix)

CRITICAL:
- You MUST extract actions from the transcript even if not explicitly stated as "action items"
- Look for phrases like "next steps", "we should", "need to", "will do", etc.
- Always populate actions field - if nothing specific, at least extract implicit tasks from the summary
- risks field must be populated - identify any potential problems, challenges, or concerns mentioned

Return ALL fields as strings. For multi-line content, use newline characters.`

// summaryPayload tolerates the model returning lists or objects where the
// prompt asked for strings.
type summaryPayload struct {
	MeetingName  json.RawMessage `json:"meeting_name"`
	DateTime     json.RawMessage `json:"datetime_str"`
	Participants json.RawMessage `json:"participants"`
	Purpose      json.RawMessage `json:"purpose"`
	Summary      json.RawMessage `json:"summary"`
	Decisions    json.RawMessage `json:"decisions"`
	Actions      json.RawMessage `json:"actions"`
	Issues       json.RawMessage `json:"issues"`
	Risks        json.RawMessage `json:"risks"`
}

// Summarize produces a structured minutes draft from a transcript. When the
// model returns something that is not JSON at all, the whole content becomes
// the summary so nothing is lost.
func (c *Client) Summarize(ctx context.Context, transcript string) (minutes.Draft, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return minutes.Draft{}, services.Wrap(services.ErrValidation, "analysis", "summarize", "transcript is empty", nil)
	}
	userPrompt := "以下は会議の文字起こしです。日本語で要約してください。\n---\n" + transcript

	content, err := c.CompleteJSON(ctx, summarySystemPrompt, userPrompt)
	if err != nil {
		return minutes.Draft{}, err
	}

	var payload summaryPayload
	if err := DecodeModelJSON(content, &payload); err != nil {
		return minutes.Draft{Summary: strings.TrimSpace(content)}, nil
	}

	draft := minutes.Draft{
		MeetingName:  flattenScalar(payload.MeetingName),
		DateTime:     flattenScalar(payload.DateTime),
		Participants: flattenScalar(payload.Participants),
		Purpose:      flattenScalar(payload.Purpose),
		Summary:      flattenSection(payload.Summary),
		Decisions:    flattenSection(payload.Decisions),
		Actions:      flattenSection(payload.Actions),
		Issues:       flattenSection(payload.Issues),
		Risks:        flattenSection(payload.Risks),
	}
	if draft.Actions == "" {
		draft.Actions = "アクションアイテムが特定できませんでした"
	}
	if draft.Risks == "" {
		draft.Risks = "特になし"
	}
	return draft, nil
}

// flattenSection normalizes a possibly list- or object-valued section into
// bullet text, one `・` line per item.
func flattenSection(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asList []json.RawMessage
	if err := json.Unmarshal(raw, &asList); err == nil {
		lines := make([]string, 0, len(asList))
		for _, item := range asList {
			if line := flattenItem(item); line != "" {
				lines = append(lines, "・"+line)
			}
		}
		return strings.Join(lines, "\n")
	}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return flattenObject(asMap)
	}
	return strings.TrimSpace(string(raw))
}

// flattenItem renders one list element. Objects with action/responsible
// keys become the canonical task notation.
func flattenItem(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return strings.TrimLeft(flattenObject(asMap), "・")
	}
	return strings.TrimSpace(string(raw))
}

func flattenObject(fields map[string]json.RawMessage) string {
	action := flattenScalar(fields["action"])
	if action != "" {
		if responsible := flattenScalar(fields["responsible"]); responsible != "" {
			return fmt.Sprintf("・%s（担当：%s）", action, responsible)
		}
		return "・" + action
	}
	lines := make([]string, 0, len(fields))
	for key, value := range fields {
		lines = append(lines, fmt.Sprintf("・%s: %s", key, flattenScalar(value)))
	}
	return strings.Join(lines, "\n")
}

// flattenScalar renders a scalar-ish field as one line. Lists join with
// commas the way participant lists read naturally.
func flattenScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asList []json.RawMessage
	if err := json.Unmarshal(raw, &asList); err == nil {
		parts := make([]string, 0, len(asList))
		for _, item := range asList {
			if part := flattenScalar(item); part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, ", ")
	}
	return strings.TrimSpace(string(raw))
}

package slack

import (
	"fmt"

	"minuteman/internal/minutes"
)

// TaskItem is one action item as rendered in the task list message.
type TaskItem struct {
	Description string
	Assignee    string
	Due         string
	Completed   bool
}

const maxMeetingNameRunes = 10

func markdownSection(label, text string) Block {
	if text == "" {
		text = "-"
	}
	return Block{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*%s*\n%s", label, text)},
	}
}

func plainText(text string) map[string]any {
	return map[string]any{"type": "plain_text", "text": text}
}

// BuildPreviewBlocks renders the draft preview message with edit and
// approve buttons carrying the draft id.
func BuildPreviewBlocks(draftID string, d minutes.Draft) []Block {
	meetingName := d.MeetingName
	if meetingName == "" {
		meetingName = d.Title
	}
	if meetingName == "" {
		meetingName = "（無題）"
	}
	if runes := []rune(meetingName); len(runes) > maxMeetingNameRunes {
		meetingName = string(runes[:maxMeetingNameRunes]) + "..."
	}

	orDash := func(v string) string {
		if v == "" {
			return "-"
		}
		return v
	}

	blocks := []Block{
		{"type": "header", "text": plainText("議事録ボット")},
		{"type": "section", "fields": []map[string]any{
			{"type": "mrkdwn", "text": "*会議名:*\n" + meetingName},
			{"type": "mrkdwn", "text": "*日時:*\n" + orDash(d.DateTime)},
			{"type": "mrkdwn", "text": "*参加者:*\n" + orDash(d.Participants)},
			{"type": "mrkdwn", "text": "*目的:*\n" + orDash(d.Purpose)},
		}},
		{"type": "divider"},
		markdownSection("サマリー", d.Summary),
		markdownSection("決定事項", d.Decisions),
		markdownSection("未決定事項", d.Issues),
	}
	if d.Actions != "" {
		blocks = append(blocks, markdownSection("アクション", d.Actions))
	}
	if d.Risks != "" {
		blocks = append(blocks, markdownSection("リスク", d.Risks))
	}
	blocks = append(blocks, Block{
		"type": "actions",
		"elements": []map[string]any{
			{"type": "button", "text": plainText("編集"), "action_id": ActionEdit, "value": draftID},
			{"type": "button", "text": plainText("承認"), "style": "primary", "action_id": ActionApprove, "value": draftID},
		},
	})
	return blocks
}

// BuildTaskBlocks renders the action item list. Each incomplete task gets a
// 完了 button whose value is "draftID:index"; completed tasks show a checked
// box and lose the button.
func BuildTaskBlocks(draftID string, tasks []TaskItem) []Block {
	if len(tasks) == 0 {
		return []Block{
			{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": "アクションアイテムは登録されていません。"}},
		}
	}

	blocks := []Block{
		{"type": "header", "text": plainText("✅ アクションアイテム＆タスク")},
	}
	for i, task := range tasks {
		checkbox := "☐"
		if task.Completed {
			checkbox = "☑"
		}
		section := Block{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": checkbox + " " + task.Description},
		}
		var fields []map[string]any
		if task.Assignee != "" {
			fields = append(fields, map[string]any{"type": "mrkdwn", "text": "*担当:*\n" + task.Assignee})
		}
		if task.Due != "" {
			fields = append(fields, map[string]any{"type": "mrkdwn", "text": "*期限:*\n" + task.Due})
		}
		if len(fields) > 0 {
			section["fields"] = fields
		}
		if !task.Completed {
			section["accessory"] = map[string]any{
				"type":      "button",
				"text":      plainText("完了"),
				"value":     fmt.Sprintf("%s:%d", draftID, i),
				"action_id": ActionTaskComplete,
			}
		}
		blocks = append(blocks, section)
	}
	return blocks
}

// BuildEditModal renders the modal used to edit a draft before approval.
// The draft id rides in private_metadata so the submission can find its
// draft again.
func BuildEditModal(draftID string, d minutes.Draft) map[string]any {
	input := func(blockID, label string, multiline bool, initial string) map[string]any {
		element := map[string]any{
			"type":          "plain_text_input",
			"action_id":     "inp",
			"initial_value": initial,
		}
		if multiline {
			element["multiline"] = true
		}
		return map[string]any{
			"type":     "input",
			"block_id": blockID,
			"label":    plainText(label),
			"element":  element,
		}
	}

	return map[string]any{
		"type":             "modal",
		"callback_id":      CallbackEditSubmit,
		"private_metadata": draftID,
		"title":            plainText("議事録 編集"),
		"submit":           plainText("保存"),
		"close":            plainText("キャンセル"),
		"blocks": []map[string]any{
			input("meeting_name", "会議名", false, d.MeetingName),
			input("datetime_str", "日時", false, d.DateTime),
			input("participants", "参加者", false, d.Participants),
			input("purpose", "目的", true, d.Purpose),
			input("summary", "サマリー", true, d.Summary),
			input("decisions", "決定事項", true, d.Decisions),
			input("issues", "未決定事項", true, d.Issues),
			input("actions", "アクション", true, d.Actions),
			input("risks", "リスク", true, d.Risks),
		},
	}
}

// TaskItemsFromDraft pairs the draft's parsed tasks with completion state.
// The completed slice is indexed by task position; a short slice means the
// remainder are incomplete.
func TaskItemsFromDraft(d minutes.Draft, completed []bool) []TaskItem {
	parsed := d.Tasks()
	items := make([]TaskItem, 0, len(parsed))
	for i, task := range parsed {
		item := TaskItem{
			Description: task.Description,
			Assignee:    task.Assignee,
			Due:         task.Due,
		}
		if i < len(completed) {
			item.Completed = completed[i]
		}
		items = append(items, item)
	}
	return items
}

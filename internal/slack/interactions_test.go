package slack_test

import (
	"testing"

	"minuteman/internal/slack"
)

func TestParseInteractionApprove(t *testing.T) {
	payload := []byte(`{
        "type": "block_actions",
        "trigger_id": "trig-1",
        "user": {"id": "U123"},
        "channel": {"id": "C456"},
        "message": {"ts": "167000.123"},
        "actions": [{"action_id": "approve", "value": "draft-1"}]
    }`)
	interaction, err := slack.ParseInteraction(payload)
	if err != nil {
		t.Fatalf("ParseInteraction failed: %v", err)
	}
	if interaction.ActionID != slack.ActionApprove || interaction.DraftID != "draft-1" {
		t.Fatalf("unexpected interaction: %#v", interaction)
	}
	if interaction.Channel != "C456" || interaction.MessageTS != "167000.123" || interaction.UserID != "U123" {
		t.Fatalf("message context not captured: %#v", interaction)
	}
}

func TestParseInteractionTaskComplete(t *testing.T) {
	payload := []byte(`{
        "type": "block_actions",
        "user": {"id": "U123"},
        "channel": {"id": "C456"},
        "message": {"ts": "167000.123"},
        "actions": [{"action_id": "task_complete", "value": "draft-1:2"}]
    }`)
	interaction, err := slack.ParseInteraction(payload)
	if err != nil {
		t.Fatalf("ParseInteraction failed: %v", err)
	}
	if interaction.DraftID != "draft-1" || interaction.TaskIndex != 2 {
		t.Fatalf("unexpected task target: %#v", interaction)
	}
}

func TestParseInteractionTaskCompleteBadValue(t *testing.T) {
	payload := []byte(`{
        "type": "block_actions",
        "actions": [{"action_id": "task_complete", "value": "draft-1"}]
    }`)
	if _, err := slack.ParseInteraction(payload); err == nil {
		t.Fatal("expected error for value without index")
	}
}

func TestParseInteractionViewSubmission(t *testing.T) {
	payload := []byte(`{
        "type": "view_submission",
        "user": {"id": "U123"},
        "view": {
            "callback_id": "edit_submit",
            "private_metadata": "draft-1",
            "state": {"values": {
                "meeting_name": {"inp": {"value": "週次定例"}},
                "summary": {"inp": {"value": "進捗確認"}},
                "actions": {"inp": {"value": "・資料を送付する（担当：田中、期限：10/25）"}}
            }}
        }
    }`)
	interaction, err := slack.ParseInteraction(payload)
	if err != nil {
		t.Fatalf("ParseInteraction failed: %v", err)
	}
	if interaction.ActionID != slack.CallbackEditSubmit || interaction.DraftID != "draft-1" {
		t.Fatalf("unexpected interaction: %#v", interaction)
	}
	if interaction.Draft.MeetingName != "週次定例" || interaction.Draft.Summary != "進捗確認" {
		t.Fatalf("view state not decoded: %#v", interaction.Draft)
	}
	if tasks := interaction.Draft.Tasks(); len(tasks) != 1 || tasks[0].Assignee != "田中" {
		t.Fatalf("edited actions not parseable: %#v", interaction.Draft.Actions)
	}
}

func TestParseInteractionRejectsUnknownType(t *testing.T) {
	if _, err := slack.ParseInteraction([]byte(`{"type": "shortcut"}`)); err == nil {
		t.Fatal("expected error for unsupported type")
	}
	if _, err := slack.ParseInteraction([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

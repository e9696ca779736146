package minutes_test

import (
	"testing"
	"time"

	"minuteman/internal/minutes"
)

func TestParseTasksCombinedAnnotation(t *testing.T) {
	actions := "・資料を送付する（担当：田中、期限：10/25）\n・会議室を予約する（担当：佐藤）\n・議事録を展開する"
	tasks := minutes.ParseTasks(actions)
	if len(tasks) != 3 {
		t.Fatalf("expected three tasks, got %d: %#v", len(tasks), tasks)
	}
	if tasks[0].Description != "資料を送付する" || tasks[0].Assignee != "田中" || tasks[0].Due != "10/25" {
		t.Fatalf("unexpected first task: %#v", tasks[0])
	}
	if tasks[1].Assignee != "佐藤" || tasks[1].Due != "" {
		t.Fatalf("unexpected second task: %#v", tasks[1])
	}
	if tasks[2].Assignee != "" || tasks[2].Due != "" {
		t.Fatalf("unexpected third task: %#v", tasks[2])
	}
}

func TestParseTasksSeparateAnnotations(t *testing.T) {
	actions := "・レビューを依頼する（担当：山田）（期限：2026-09-15）"
	tasks := minutes.ParseTasks(actions)
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	if tasks[0].Description != "レビューを依頼する" || tasks[0].Assignee != "山田" || tasks[0].Due != "2026-09-15" {
		t.Fatalf("unexpected task: %#v", tasks[0])
	}
}

func TestParseTasksTreatsPlaceholderAsAbsent(t *testing.T) {
	tasks := minutes.ParseTasks("・フォローアップ（担当：未定、期限：未定）")
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	if tasks[0].Assignee != "" || tasks[0].Due != "" {
		t.Fatalf("expected placeholders stripped: %#v", tasks[0])
	}
}

func TestParseTasksSkipsBlankLines(t *testing.T) {
	if tasks := minutes.ParseTasks("\n・\n  \n"); len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %#v", tasks)
	}
}

func TestFormatTasksRoundTrip(t *testing.T) {
	original := []minutes.Task{
		{Description: "資料を送付する", Assignee: "田中", Due: "10/25"},
		{Description: "会議室を予約する"},
	}
	parsed := minutes.ParseTasks(minutes.FormatTasks(original))
	if len(parsed) != 2 {
		t.Fatalf("expected two tasks, got %d", len(parsed))
	}
	if parsed[0] != original[0] {
		t.Fatalf("first task mutated: %#v", parsed[0])
	}
	if parsed[1].Description != "会議室を予約する" || parsed[1].Assignee != "" {
		t.Fatalf("second task mutated: %#v", parsed[1])
	}
}

func TestAssigneeBase(t *testing.T) {
	cases := map[string]string{
		"田中(PM)":   "田中",
		"田中（リーダー）": "田中",
		"佐藤":       "佐藤",
	}
	for input, want := range cases {
		if got := minutes.AssigneeBase(input); got != want {
			t.Fatalf("AssigneeBase(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseDue(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, loc)

	cases := []struct {
		raw  string
		want time.Time
	}{
		{"2026-10-25 15:00", time.Date(2026, 10, 25, 15, 0, 0, 0, loc)},
		{"2026/10/25 15:00", time.Date(2026, 10, 25, 15, 0, 0, 0, loc)},
		{"2026-10-25", time.Date(2026, 10, 25, 10, 0, 0, 0, loc)},
		{"2026/10/25", time.Date(2026, 10, 25, 10, 0, 0, 0, loc)},
		{"10/25", time.Date(2026, 10, 25, 10, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		got := minutes.ParseDue(tc.raw, loc, 10, now)
		if got == nil || !got.Equal(tc.want) {
			t.Fatalf("ParseDue(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}

	for _, raw := range []string{"", "未定", "来週中", "25/13/45"} {
		if got := minutes.ParseDue(raw, loc, 10, now); got != nil {
			t.Fatalf("ParseDue(%q) = %v, want nil", raw, got)
		}
	}
}

func TestDraftEncodeDecode(t *testing.T) {
	draft := minutes.Draft{
		ID:        "draft-1",
		FileID:    "file-1",
		Title:     "週次定例",
		Summary:   "進捗確認を行った。",
		Decisions: "・リリースを一週間延期する",
		Actions:   "・周知メールを送る（担当：田中、期限：10/25）",
	}
	encoded, err := draft.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := minutes.DecodeDraft(encoded)
	if err != nil {
		t.Fatalf("DecodeDraft failed: %v", err)
	}
	if decoded != draft {
		t.Fatalf("round trip mutated draft: %#v", decoded)
	}
	if tasks := decoded.Tasks(); len(tasks) != 1 || tasks[0].Assignee != "田中" {
		t.Fatalf("unexpected tasks: %#v", decoded.Tasks())
	}
}

func TestDisplayTitleFallbacks(t *testing.T) {
	if got := (minutes.Draft{Title: "キックオフ"}).DisplayTitle(); got != "キックオフ" {
		t.Fatalf("unexpected title: %q", got)
	}
	if got := (minutes.Draft{MeetingName: "定例"}).DisplayTitle(); got != "定例" {
		t.Fatalf("unexpected title: %q", got)
	}
	if got := (minutes.Draft{}).DisplayTitle(); got != "議事録" {
		t.Fatalf("unexpected title: %q", got)
	}
}

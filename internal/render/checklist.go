package render

import (
	"fmt"
	"strings"

	"minuteman/internal/minutes"
)

var checklistSections = []struct {
	heading string
	items   []string
}{
	{
		"作業を始める前の準備（DoR: Definition of Ready）",
		[]string{
			"要件定義書ができている",
			"ユーザーストーリーが明確に定義されている",
			"技術的制約が共有されている",
			"デザインシステム/ガイドライン等設定済み",
		},
	},
	{
		"デザイン引き渡し（ハンドオフ）",
		[]string{
			"画面フロー・経路図",
			"ワイヤーフレーム（全画面）",
			"UIコンポーネント仕様",
			"インタラクション/アニメーション定義",
			"レスポンシブ対応仕様",
			"アクセシビリティ対応（WCAG AA相当）",
		},
	},
	{
		"作業完了の確認（DoD: Definition of Done）",
		[]string{
			"デザインレビュー完了",
			"関係者の最終確認完了",
			"アセット（画像・アイコン）共有済み",
			"最新デザインファイルがマージ済み",
			"エンジニアへの巻き書き/仕様書が完了",
		},
	},
}

var checklistRoles = []string{"デザイナー", "エンジニア", "PM"}

// DesignChecklist renders the design checklist document posted alongside an
// approved draft.
func DesignChecklist(draft minutes.Draft) string {
	var b strings.Builder
	b.WriteString("設計チェックリスト\n\n")
	fmt.Fprintf(&b, "会議名：%s\n", orPlaceholder(firstNonEmpty(draft.MeetingName, draft.Title)))
	fmt.Fprintf(&b, "日時：%s\n", orPlaceholder(draft.DateTime))
	fmt.Fprintf(&b, "目的：%s\n", orPlaceholder(draft.Purpose))

	for _, section := range checklistSections {
		fmt.Fprintf(&b, "\n■ %s\n", section.heading)
		for _, item := range section.items {
			fmt.Fprintf(&b, "☐ %s\n", item)
		}
	}

	b.WriteString("\n")
	for _, role := range checklistRoles {
		fmt.Fprintf(&b, "%s 署名：_________________________\n", role)
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func orPlaceholder(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return strings.TrimSpace(value)
}

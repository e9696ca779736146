package minutes

import (
	"regexp"
	"strings"
)

// Task is one action item parsed from a draft's actions section.
type Task struct {
	Description string
	Assignee    string
	Due         string
}

const (
	// UnassignedLabel marks an action item with no named owner.
	UnassignedLabel = "未定"
)

var (
	assigneePattern = regexp.MustCompile(`（担当：([^）]+)）`)
	duePattern      = regexp.MustCompile(`（期限：([^）]+)）`)
	parenthetical   = regexp.MustCompile(`[（(][^）)]*[）)]`)
)

// ParseTasks splits an actions section into structured items. Each line is
// one `・description（担当：X、期限：Y）` entry; the owner and due
// annotations may appear combined in one group or as separate groups, and
// either may be absent. A 未定 placeholder counts as absent.
func ParseTasks(actions string) []Task {
	var tasks []Task
	for _, raw := range strings.Split(actions, "\n") {
		item := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(raw), "・"))
		if item == "" {
			continue
		}
		task := Task{}
		if match := assigneePattern.FindStringSubmatch(item); match != nil {
			annotation := match[1]
			// Combined form: 担当：X、期限：Y inside one group.
			if owner, due, found := strings.Cut(annotation, "、期限："); found {
				task.Assignee = strings.TrimSpace(owner)
				task.Due = strings.TrimSpace(due)
			} else {
				task.Assignee = strings.TrimSpace(annotation)
			}
			item = strings.TrimSpace(strings.Replace(item, match[0], "", 1))
		}
		if match := duePattern.FindStringSubmatch(item); match != nil {
			task.Due = strings.TrimSpace(match[1])
			item = strings.TrimSpace(strings.Replace(item, match[0], "", 1))
		}
		if task.Assignee == UnassignedLabel {
			task.Assignee = ""
		}
		if task.Due == UnassignedLabel {
			task.Due = ""
		}
		if item == "" {
			continue
		}
		task.Description = item
		tasks = append(tasks, task)
	}
	return tasks
}

// AssigneeBase strips a trailing role annotation such as 田中(PM) so the
// bare name can be resolved against the user map.
func AssigneeBase(name string) string {
	return strings.TrimSpace(parenthetical.ReplaceAllString(name, ""))
}

// FormatTaskLine renders one task back into the canonical notation.
func FormatTaskLine(task Task) string {
	line := "・" + task.Description
	owner := task.Assignee
	if owner == "" {
		owner = UnassignedLabel
	}
	due := task.Due
	if due == "" {
		due = UnassignedLabel
	}
	return line + "（担当：" + owner + "、期限：" + due + "）"
}

// FormatTasks renders a task list back into an actions section.
func FormatTasks(tasks []Task) string {
	lines := make([]string, 0, len(tasks))
	for _, task := range tasks {
		lines = append(lines, FormatTaskLine(task))
	}
	return strings.Join(lines, "\n")
}

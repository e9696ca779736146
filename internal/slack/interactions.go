package slack

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"minuteman/internal/minutes"
	"minuteman/internal/services"
)

// Interaction action and callback identifiers wired into the message blocks.
const (
	ActionEdit         = "edit"
	ActionApprove      = "approve"
	ActionTaskComplete = "task_complete"
	CallbackEditSubmit = "edit_submit"
)

// Interaction is a normalized inbound interaction callback.
type Interaction struct {
	Type      string
	ActionID  string
	DraftID   string
	TaskIndex int
	TriggerID string
	Channel   string
	MessageTS string
	UserID    string
	// Draft carries the edited fields of a view submission.
	Draft minutes.Draft
}

// ParseInteraction decodes the JSON interaction payload posted by the
// platform. Block action values identify the draft (and, for completions,
// the task index as "draftID:index"); view submissions carry the draft id
// in private_metadata and the edited sections in the view state.
func ParseInteraction(payload []byte) (*Interaction, error) {
	if !gjson.ValidBytes(payload) {
		return nil, services.Wrap(services.ErrParse, "slack", "parse_interaction", "payload is not valid JSON", nil)
	}
	root := gjson.ParseBytes(payload)
	interaction := &Interaction{
		Type:      root.Get("type").String(),
		TriggerID: root.Get("trigger_id").String(),
		UserID:    root.Get("user.id").String(),
		TaskIndex: -1,
	}

	switch interaction.Type {
	case "block_actions":
		action := root.Get("actions.0")
		if !action.Exists() {
			return nil, services.Wrap(services.ErrParse, "slack", "parse_interaction", "block_actions without actions", nil)
		}
		interaction.ActionID = action.Get("action_id").String()
		interaction.Channel = root.Get("channel.id").String()
		interaction.MessageTS = root.Get("message.ts").String()

		value := action.Get("value").String()
		if interaction.ActionID == ActionTaskComplete {
			draftID, indexPart, found := strings.Cut(value, ":")
			if !found {
				return nil, services.Wrap(services.ErrParse, "slack", "parse_interaction",
					fmt.Sprintf("task value %q missing index", value), nil)
			}
			index, err := strconv.Atoi(indexPart)
			if err != nil || index < 0 {
				return nil, services.Wrap(services.ErrParse, "slack", "parse_interaction",
					fmt.Sprintf("task value %q has bad index", value), err)
			}
			interaction.DraftID = draftID
			interaction.TaskIndex = index
		} else {
			interaction.DraftID = value
		}

	case "view_submission":
		view := root.Get("view")
		if view.Get("callback_id").String() != CallbackEditSubmit {
			return nil, services.Wrap(services.ErrParse, "slack", "parse_interaction",
				fmt.Sprintf("unexpected callback %q", view.Get("callback_id").String()), nil)
		}
		interaction.ActionID = CallbackEditSubmit
		interaction.DraftID = view.Get("private_metadata").String()

		values := view.Get("state.values")
		field := func(blockID string) string {
			return values.Get(blockID + ".inp.value").String()
		}
		interaction.Draft = minutes.Draft{
			MeetingName:  field("meeting_name"),
			DateTime:     field("datetime_str"),
			Participants: field("participants"),
			Purpose:      field("purpose"),
			Summary:      field("summary"),
			Decisions:    field("decisions"),
			Issues:       field("issues"),
			Actions:      field("actions"),
			Risks:        field("risks"),
		}

	default:
		return nil, services.Wrap(services.ErrParse, "slack", "parse_interaction",
			fmt.Sprintf("unsupported interaction type %q", interaction.Type), nil)
	}

	if interaction.DraftID == "" {
		return nil, services.Wrap(services.ErrParse, "slack", "parse_interaction", "missing draft id", nil)
	}
	return interaction, nil
}

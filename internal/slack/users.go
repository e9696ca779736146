package slack

import (
	"minuteman/internal/minutes"
)

// UserResolver maps assignee names from minutes to platform user ids. Names
// may carry role annotations like 田中(PM); resolution uses the bare name.
type UserResolver struct {
	byName map[string]string
}

// NewUserResolver builds a resolver from the configured name → id map.
func NewUserResolver(userMap map[string]string) *UserResolver {
	byName := make(map[string]string, len(userMap))
	for name, id := range userMap {
		byName[minutes.AssigneeBase(name)] = id
	}
	return &UserResolver{byName: byName}
}

// Resolve returns the user id for an assignee name, or "" when unknown.
func (r *UserResolver) Resolve(name string) string {
	if r == nil || name == "" {
		return ""
	}
	return r.byName[minutes.AssigneeBase(name)]
}

// Mention renders the assignee as a platform mention when resolvable,
// otherwise returns "".
func (r *UserResolver) Mention(name string) string {
	if id := r.Resolve(name); id != "" {
		return "<@" + id + "> "
	}
	return ""
}

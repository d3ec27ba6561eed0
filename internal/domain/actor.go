package domain

import "strconv"

// Actor identifies the user performing an operation together with the
// guild roles the caller resolved for them. Role membership is evaluated
// against GuildPolicy, never against the chat platform directly.
type Actor struct {
	ID      int64
	Name    string
	RoleIDs []int64
}

// Mention renders a platform-agnostic reference to the actor.
func (a Actor) Mention() string {
	if a.Name != "" {
		return a.Name
	}
	return "user " + strconv.FormatInt(a.ID, 10)
}

package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventParticipantAdded   EventType = "participant_added"
	EventParticipantRemoved EventType = "participant_removed"
	EventTicketClosed       EventType = "ticket_closed"
)

// Event represents a lifecycle event emitted by the manager.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	GuildID   int64       `json:"guild_id"`
	ActorID   int64       `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	ChannelID int64 `json:"channel_id"`
	CreatorID int64 `json:"creator_id"`
}

// ParticipantChangedPayload payload for add/remove.
type ParticipantChangedPayload struct {
	UserID  int64 `json:"user_id"`
	StaffID int64 `json:"staff_id"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Reason        string  `json:"reason,omitempty"`
	TranscriptRef *string `json:"transcript_ref,omitempty"`
	Forced        bool    `json:"forced"`
}

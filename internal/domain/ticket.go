package domain

import (
	"slices"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusClosed   TicketStatus = "closed"
	TicketStatusArchived TicketStatus = "archived"
)

// Ticket is the aggregate for a support conversation bound to one
// exclusive channel. TicketID, GuildID, ChannelID and CreatorID are fixed
// at creation; only status, participants and transcript change afterwards.
type Ticket struct {
	TicketID      string
	GuildID       int64
	ChannelID     int64
	CreatorID     int64
	Status        TicketStatus
	CreatedAt     time.Time
	ClosedAt      *time.Time
	Participants  []int64
	AssignedStaff []int64
	TranscriptRef *string
}

// HasParticipant reports whether the user is part of the ticket.
func (t *Ticket) HasParticipant(userID int64) bool {
	return slices.Contains(t.Participants, userID)
}

// IsOpen reports whether the ticket still accepts mutation.
func (t *Ticket) IsOpen() bool {
	return t.Status == TicketStatusOpen
}

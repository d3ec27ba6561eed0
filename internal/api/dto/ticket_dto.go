package dto

import (
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// TicketResponse is the ops API view of a ticket.
type TicketResponse struct {
	TicketID      string              `json:"ticket_id"`
	GuildID       int64               `json:"guild_id"`
	ChannelID     int64               `json:"channel_id"`
	CreatorID     int64               `json:"creator_id"`
	Status        domain.TicketStatus `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
	ClosedAt      *time.Time          `json:"closed_at,omitempty"`
	Participants  []int64             `json:"participants"`
	AssignedStaff []int64             `json:"assigned_staff"`
	TranscriptRef *string             `json:"transcript_ref,omitempty"`
}

// FromTicket maps the domain aggregate.
func FromTicket(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		TicketID:      ticket.TicketID,
		GuildID:       ticket.GuildID,
		ChannelID:     ticket.ChannelID,
		CreatorID:     ticket.CreatorID,
		Status:        ticket.Status,
		CreatedAt:     ticket.CreatedAt,
		ClosedAt:      ticket.ClosedAt,
		Participants:  ticket.Participants,
		AssignedStaff: ticket.AssignedStaff,
		TranscriptRef: ticket.TranscriptRef,
	}
}

// ForceCloseRequest payload.
type ForceCloseRequest struct {
	Reason string `json:"reason"`
}

package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bot/internal/api/dto"
	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/service"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

// TicketsHandler exposes ticket lifecycle state to operators.
type TicketsHandler struct {
	store     repository.TicketStore
	lifecycle *service.LifecycleService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(store repository.TicketStore, lifecycle *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{store: store, lifecycle: lifecycle}
}

// ListTickets GET /tickets?guild_id=&status=.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	guildID, err := strconv.ParseInt(c.Query("guild_id"), 10, 64)
	if err != nil {
		return apperrors.NewValidationError("guild_id required", nil)
	}

	var status *domain.TicketStatus
	if raw := c.Query("status"); raw != "" {
		parsed := domain.TicketStatus(raw)
		switch parsed {
		case domain.TicketStatusOpen, domain.TicketStatusClosed, domain.TicketStatusArchived:
			status = &parsed
		default:
			return apperrors.NewValidationError("invalid status filter", map[string]any{"status": raw})
		}
	}

	tickets, err := h.store.ListByGuild(c.UserContext(), guildID, status)
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.FromTicket(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.store.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	if ticket == nil {
		return apperrors.NewTicketNotFound(map[string]any{"ticket_id": c.Params("id")})
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// ForceClose POST /tickets/:id/force-close.
func (h *TicketsHandler) ForceClose(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return apperrors.NewUnauthorized("operator required")
	}

	var req dto.ForceCloseRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticketID := c.Params("id")
	ticket, err := h.store.GetByID(c.UserContext(), ticketID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if ticket == nil {
		return apperrors.NewTicketNotFound(map[string]any{"ticket_id": ticketID})
	}

	// Operators act with the guild's staff roles: admin access to the ops
	// API stands in for chat-platform staff membership.
	actor := domain.Actor{ID: 0, Name: "operator:" + principal.Operator.Login}
	if err := h.forceCloseAsStaff(c, ticket, actor, req.Reason); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"ticket_id": ticketID, "status": domain.TicketStatusClosed}})
}

func (h *TicketsHandler) forceCloseAsStaff(c *fiber.Ctx, ticket *domain.Ticket, actor domain.Actor, reason string) error {
	pol, err := h.lifecycle.StaffRolesForGuild(c.UserContext(), ticket.GuildID)
	if err != nil {
		return apperrors.MapError(err)
	}
	actor.RoleIDs = pol
	return h.lifecycle.ForceClose(c.UserContext(), ticket.TicketID, actor, reason)
}

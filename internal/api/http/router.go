package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bot/internal/api/http/handlers"
	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Operators      *handlers.OperatorsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Operators.Login)

	protected := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	protected.Get("/", cfg.Tickets.ListTickets)
	protected.Get("/:id", cfg.Tickets.GetTicket)
	protected.Post("/:id/force-close",
		auth.RequireOperatorRole(domain.OperatorRoleAdmin),
		cfg.Tickets.ForceClose)
}

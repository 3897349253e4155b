// Package web provides the HTTP handlers for the ticket API: ticket CRUD,
// operator commands, todo resolution, and external-system callbacks.
package web

import (
	"strconv"

	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/dbmesh/ticketflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	ticketService *services.Ticket
	validator     *validator.Validate
}

func NewAPIHandlers(ticketService *services.Ticket, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		ticketService: ticketService,
		validator:     validate,
	}
}

// RegisterRoutes mounts every API route on the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/ticket-types", h.GetTicketTypes)

	tickets := app.Group("/tickets")
	tickets.Post("/", h.CreateTicket)
	tickets.Get("/", h.GetTickets)
	tickets.Get("/:id", h.GetTicket)
	tickets.Post("/:id/terminate", h.TerminateTicket)
	tickets.Post("/:id/flows/:flowId/retry", h.RetryFlow)
	tickets.Post("/:id/flows/:flowId/skip", h.SkipFlow)
	tickets.Post("/:id/flows/:flowId/callbacks", h.SubmitCallback)

	todos := app.Group("/todos")
	todos.Get("/", h.GetPendingTodos)
	todos.Post("/:id/resolve", h.ResolveTodo)
}

func (h *APIHandlers) GetTicketTypes(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"types": h.ticketService.Types()})
}

func (h *APIHandlers) CreateTicket(c fiber.Ctx) error {
	var req CreateTicketRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ticket, err := h.ticketService.Create(c.Context(), services.CreateTicketRequest{
		Type:      req.Type,
		BizID:     req.BizID,
		Requester: req.Requester,
		Details:   req.Details,
		Remark:    req.Remark,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ticket)
}

func (h *APIHandlers) GetTickets(c fiber.Ctx) error {
	opts, err := h.parseListTicketsOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	tickets, err := h.ticketService.List(c.Context(), *opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"tickets": tickets,
		"pagination": fiber.Map{
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	})
}

func (h *APIHandlers) parseListTicketsOptions(c fiber.Ctx) (*persistence.ListTicketsOptions, error) {
	opts := &persistence.ListTicketsOptions{
		BizID:     c.Query("biz_id"),
		Type:      c.Query("type"),
		Requester: c.Query("requester"),
	}

	if status := c.Query("status"); status != "" {
		opts.Status = models.TicketStatus(status)
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		opts.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		opts.Offset = offset
	}

	return opts, nil
}

func (h *APIHandlers) GetTicket(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Ticket ID is required")
	}

	detail, err := h.ticketService.Get(c.Context(), id)
	if err != nil {
		if persistence.IsTicketNotFound(err) {
			return notFound(c, "Ticket not found")
		}

		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) TerminateTicket(c fiber.Ctx) error {
	id := c.Params("id")

	var req TerminateTicketRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.ticketService.Terminate(c.Context(), id, req.TerminatedBy, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RetryFlow(c fiber.Ctx) error {
	err := h.ticketService.RetryFlow(c.Context(), c.Params("id"), c.Params("flowId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) SkipFlow(c fiber.Ctx) error {
	err := h.ticketService.SkipFlow(c.Context(), c.Params("id"), c.Params("flowId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// SubmitCallback accepts a completion or progress report from an external
// system and hands it to the engine worker through the bus.
func (h *APIHandlers) SubmitCallback(c fiber.Ctx) error {
	var req CallbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.ticketService.SubmitCallback(c.Context(), c.Params("id"), c.Params("flowId"), req.ExternalRef, req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetPendingTodos(c fiber.Ctx) error {
	assignee := c.Query("assignee")
	if assignee == "" {
		return badRequest(c, "assignee query parameter is required")
	}

	todos, err := h.ticketService.PendingTodos(c.Context(), assignee)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"todos": todos})
}

func (h *APIHandlers) ResolveTodo(c fiber.Ctx) error {
	var req ResolveTodoRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	resolved, err := h.ticketService.ResolveTodo(c.Context(), c.Params("id"), req.Outcome, req.ResolvedBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resolved)
}

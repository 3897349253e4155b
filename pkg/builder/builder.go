// Package builder turns ticket requests into persisted tickets with their
// ordered flows, driven by per-type recipes.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbmesh/ticketflow/pkg/clients"
	"github.com/dbmesh/ticketflow/pkg/eventbus"
	"github.com/dbmesh/ticketflow/pkg/events"
	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrUnknownTicketType is returned when no recipe is registered for the
	// requested type.
	ErrUnknownTicketType = errors.New("unknown ticket type")
	// ErrTicketValidation is returned when a request fails structural or
	// schema validation.
	ErrTicketValidation = errors.New("ticket request validation failed")
	// ErrRecipeInvalid is returned when a recipe cannot be registered.
	ErrRecipeInvalid = errors.New("invalid recipe")
)

// FlowBlueprint describes one stage of a recipe. Details are static
// parameters merged under the request's details. When is an optional
// predicate deciding whether the stage applies to a given request; skipped
// stages leave no gap in flow positions. BuildParams optionally reshapes the
// request's details into the flow's input.
type FlowBlueprint struct {
	Kind        models.FlowKind
	RetryPolicy models.RetryPolicy
	MaxRetries  int
	Skippable   bool
	Mutating    bool
	Details     map[string]any
	When        func(req BuildRequest) bool
	BuildParams func(details map[string]any) map[string]any
}

// Recipe is the per-ticket-type plan: a details schema plus the ordered
// flow blueprints. Behavior differences between ticket types live entirely
// in recipes; the engine never branches on ticket type.
type Recipe struct {
	Type          string
	Title         string
	DetailsSchema string
	Flows         []FlowBlueprint

	compiledSchema *gojsonschema.Schema
}

// BuildRequest is the validated input for creating a ticket.
type BuildRequest struct {
	Type      string         `validate:"required"`
	BizID     string         `validate:"required"`
	Requester string         `validate:"required"`
	Details   map[string]any `validate:"required"`
	Remark    string
}

// Builder validates requests against registered recipes and persists the
// resulting ticket and flows in one atomic step.
type Builder struct {
	recipes     map[string]*Recipe
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
	cmdb        clients.CMDBClient
	logger      *slog.Logger
}

func NewBuilder(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Builder {
	return &Builder{
		recipes:     make(map[string]*Recipe),
		persistence: p,
		publisher:   publisher,
		validate:    validator.New(),
		logger:      logger.With("module", "builder"),
	}
}

// WithCMDB enables resource existence checks against the configuration
// management database at build time.
func (b *Builder) WithCMDB(cmdb clients.CMDBClient) *Builder {
	b.cmdb = cmdb

	return b
}

// Register compiles the recipe's schema and indexes it by ticket type.
func (b *Builder) Register(recipe *Recipe) error {
	if recipe.Type == "" {
		return fmt.Errorf("recipe has no type: %w", ErrRecipeInvalid)
	}

	if len(recipe.Flows) == 0 {
		return fmt.Errorf("recipe %q has no flows: %w", recipe.Type, ErrRecipeInvalid)
	}

	if recipe.DetailsSchema != "" {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(recipe.DetailsSchema))
		if err != nil {
			return fmt.Errorf("recipe %q has an invalid schema: %w", recipe.Type, err)
		}

		recipe.compiledSchema = schema
	}

	b.recipes[recipe.Type] = recipe

	return nil
}

// Recipe returns the registered recipe for a ticket type.
func (b *Builder) Recipe(ticketType string) (*Recipe, error) {
	recipe, ok := b.recipes[ticketType]
	if !ok {
		return nil, fmt.Errorf("no recipe for type %q: %w", ticketType, ErrUnknownTicketType)
	}

	return recipe, nil
}

// Types lists the registered ticket types.
func (b *Builder) Types() []string {
	types := make([]string, 0, len(b.recipes))
	for t := range b.recipes {
		types = append(types, t)
	}

	return types
}

// Build validates the request, materializes the recipe into flows, persists
// everything atomically, and announces the new ticket on the bus.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*models.Ticket, error) {
	err := b.validate.Struct(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTicketValidation, err)
	}

	recipe, err := b.Recipe(req.Type)
	if err != nil {
		return nil, err
	}

	err = b.validateDetails(recipe, req.Details)
	if err != nil {
		return nil, err
	}

	err = b.checkResource(ctx, req.BizID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	ticket := &models.Ticket{
		ID:        uuid.New().String(),
		Type:      req.Type,
		BizID:     req.BizID,
		Requester: req.Requester,
		Details:   req.Details,
		Status:    models.TicketStatusPending,
		Remark:    req.Remark,
		CreatedAt: now,
		UpdatedAt: now,
	}

	flows := make([]*models.Flow, 0, len(recipe.Flows))

	for _, blueprint := range recipe.Flows {
		if blueprint.When != nil && !blueprint.When(req) {
			continue
		}

		flows = append(flows, materializeFlow(ticket, blueprint, len(flows), now))
	}

	if len(flows) == 0 {
		return nil, fmt.Errorf("%w: recipe %q produced no flows for this request", ErrTicketValidation, req.Type)
	}

	err = b.persistence.Tickets().CreateWithFlows(ctx, ticket, flows)
	if err != nil {
		return nil, fmt.Errorf("failed to persist ticket: %w", err)
	}

	event := events.TicketCreated{
		BaseEvent:  events.NewBaseEvent(events.TicketCreatedEvent, ticket.ID),
		TicketType: ticket.Type,
		Requester:  ticket.Requester,
	}

	err = b.publisher.Publish(ctx, ticket.ID, event)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to publish ticket created event", "ticket_id", ticket.ID, "error", err)
	}

	b.logger.InfoContext(ctx, "Built ticket",
		"ticket_id", ticket.ID, "type", ticket.Type, "flows", len(flows))

	return ticket, nil
}

func (b *Builder) validateDetails(recipe *Recipe, details map[string]any) error {
	if recipe.compiledSchema == nil {
		return nil
	}

	result, err := recipe.compiledSchema.Validate(gojsonschema.NewGoLoader(details))
	if err != nil {
		return fmt.Errorf("failed to validate details: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w: %v", ErrTicketValidation, messages)
	}

	return nil
}

// checkResource rejects tickets against resources the CMDB does not know.
// Without a CMDB client every biz ID is accepted.
func (b *Builder) checkResource(ctx context.Context, bizID string) error {
	if b.cmdb == nil {
		return nil
	}

	_, err := b.cmdb.GetResource(ctx, bizID)
	if errors.Is(err, clients.ErrNotFound) {
		return fmt.Errorf("%w: unknown resource %q", ErrTicketValidation, bizID)
	}

	if err != nil {
		return fmt.Errorf("failed to look up resource %q: %w", bizID, err)
	}

	return nil
}

// materializeFlow instantiates a blueprint. The flow sees the request's
// details with the blueprint's static parameters layered on top, and a
// mutating blueprint claims the resources named by the request.
func materializeFlow(ticket *models.Ticket, blueprint FlowBlueprint, position int, now time.Time) *models.Flow {
	input := ticket.Details
	if blueprint.BuildParams != nil {
		input = blueprint.BuildParams(ticket.Details)
	}

	details := make(map[string]any, len(input)+len(blueprint.Details))

	for k, v := range input {
		details[k] = v
	}

	for k, v := range blueprint.Details {
		details[k] = v
	}

	flow := &models.Flow{
		ID:          uuid.New().String(),
		TicketID:    ticket.ID,
		Kind:        blueprint.Kind,
		Position:    position,
		Status:      models.FlowStatusPending,
		Details:     details,
		RetryPolicy: blueprint.RetryPolicy,
		MaxRetries:  blueprint.MaxRetries,
		Skippable:   blueprint.Skippable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if blueprint.Mutating {
		flow.ResourceIDs = resourceIDs(ticket)
	}

	return flow
}

func resourceIDs(ticket *models.Ticket) []string {
	if raw, ok := ticket.Details["resource_ids"].([]any); ok {
		ids := make([]string, 0, len(raw))

		for _, item := range raw {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}

		if len(ids) > 0 {
			return ids
		}
	}

	return []string{ticket.BizID}
}

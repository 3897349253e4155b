// Package main provides the TicketFlow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dbmesh/ticketflow/pkg/cmd"
	"github.com/dbmesh/ticketflow/pkg/engine"
	"github.com/dbmesh/ticketflow/pkg/eventbus"
	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/dbmesh/ticketflow/pkg/services"
	"github.com/dbmesh/ticketflow/pkg/todo"
	"github.com/dbmesh/ticketflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	clientCfg   cmd.ClientConfig
	redisURL    string
	recipesPath string
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	clientCfg cmd.ClientConfig,
	redisURL string,
	recipesPath string,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		clientCfg:   clientCfg,
		redisURL:    redisURL,
		recipesPath: recipesPath,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// App assembles the full service stack behind the HTTP handlers. Operator
// commands run through the engine in-process; everything event-driven is
// handled by the worker binary consuming the same bus.
func (a *API) App() *fiber.App {
	todos := todo.NewManager(a.persistence, a.eventBus, a.logger)
	executors := cmd.NewExecutors(a.clientCfg, todos, a.logger)

	e := engine.NewEngine(
		a.persistence,
		cmd.NewGuard(a.redisURL),
		executors,
		todos,
		a.eventBus,
		a.logger,
		engine.Config{},
	)

	b := cmd.NewBuilder(a.persistence, a.eventBus, a.clientCfg, a.recipesPath, a.logger)
	ticketService := services.NewTicket(a.persistence, b, e, todos, a.eventBus, a.logger)
	handlers := web.NewAPIHandlers(ticketService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("TicketFlow API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}

package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/staffly/approvalflow/pkg/engine"
	"github.com/staffly/approvalflow/pkg/eventbus"
	"github.com/staffly/approvalflow/pkg/persistence"
	"github.com/staffly/approvalflow/pkg/services"
	"github.com/staffly/approvalflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
) (*API, error) {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (a *API) App() (*fiber.App, error) {
	eng := engine.New(a.persistence.InstanceRepository(), a.eventBus, a.logger)

	templateService, err := services.NewTemplate(a.persistence)
	if err != nil {
		return nil, err
	}

	instanceService := services.NewInstance(a.persistence, eng)

	handlers := web.NewAPIHandlers(templateService, instanceService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Approvalflow API")
	})

	t := app.Group("/templates")
	t.Get("/", handlers.GetTemplates)
	t.Post("/", handlers.CreateTemplate)
	t.Post("/import", handlers.ImportTemplate)
	t.Get("/:id", handlers.GetTemplate)
	t.Put("/:id", handlers.UpdateTemplate)
	t.Delete("/:id", handlers.DeleteTemplate)
	t.Post("/:id/duplicate", handlers.DuplicateTemplate)
	t.Post("/:id/set-default", handlers.SetDefaultTemplate)

	i := app.Group("/instances")
	i.Get("/", handlers.GetInstances)
	i.Post("/", handlers.SubmitInstance)
	i.Get("/:id", handlers.GetInstance)
	i.Post("/:id/advance", handlers.AdvanceInstance)
	i.Post("/:id/steps/:stepId/approve", handlers.ApproveStep)
	i.Post("/:id/steps/:stepId/reject", handlers.RejectStep)

	app.Get("/health", handlers.HealthCheck)

	return app, nil
}

func (a *API) Start(port int) error {
	app, err := a.App()
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}

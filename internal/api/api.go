// Package api implements the Control API: an HTTP ingress shim over the
// compile/start/resume/replay/dlq operations of internal/graph,
// internal/engine, and internal/dlq, grounded on
// operion/cmd/operion-api's route/middleware layout and pkg/web's
// handler/problem-response conventions.
package api

import (
	"log/slog"

	"github.com/dukex/aob/internal/dlq"
	"github.com/dukex/aob/internal/engine"
	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

// API wires the Control API's dependencies; App builds the fiber.App that
// serves them.
type API struct {
	logger    *slog.Logger
	engine    *engine.Engine
	behaviors engine.Registry
	specs     graph.Repository
	runs      RunIndex
	store     store.EventStore
	dlq       dlq.DLQ
	validate  *validator.Validate
	tracer    trace.Tracer
}

// New constructs an API. behaviors is the fixed Behavior registry every
// run started through this API executes against; tool/model adapters are
// wired by the caller (cmd/aob-api), out of this package's scope. tracer
// may be nil, in which case span creation is a no-op (trace.NewNoopTracerProvider).
func New(logger *slog.Logger, eng *engine.Engine, behaviors engine.Registry, specs graph.Repository, runs RunIndex, st store.EventStore, d dlq.DLQ, tracer trace.Tracer) *API {
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("aob-api")
	}

	return &API{
		logger:    logger,
		engine:    eng,
		behaviors: behaviors,
		specs:     specs,
		runs:      runs,
		store:     st,
		dlq:       d,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		tracer:    tracer,
	}
}

// App builds the fiber.App serving the Control API's routes.
func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{DisableColors: true}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	w := app.Group("/workflows")
	w.Post("/", a.CreateWorkflow)
	w.Get("/:id", a.GetWorkflow)
	w.Post("/:id/runs", a.StartRun)

	r := app.Group("/runs")
	r.Post("/:id/resume", a.ResumeRun)
	r.Get("/:id/events", a.GetEvents)
	r.Get("/:id/snapshot", a.GetSnapshot)
	r.Get("/:id/snapshots", a.ListSnapshots)
	r.Get("/:id/replay", a.GetReplay)

	d := app.Group("/dlq")
	d.Get("/", a.ListDLQ)
	d.Post("/:id/requeue", a.RequeueDLQ)
	d.Delete("/:id", a.PurgeDLQ)

	return app
}

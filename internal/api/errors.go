package api

import (
	"errors"

	"github.com/dukex/aob/internal/engine"
	"github.com/dukex/aob/internal/graph"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// ErrSnapshotNotFound is returned when a replay request names a
// snapshot_id that was never persisted for the run.
var ErrSnapshotNotFound = errors.New("api: snapshot not found")

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusConflict).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps the sentinel errors surfaced by internal/graph and
// internal/engine onto RFC7807 problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	var compileErr *graph.CompileError

	switch {
	case errors.As(err, &compileErr):
		return badRequest(c, compileErr.Error())
	case errors.Is(err, graph.ErrSpecNotFound), errors.Is(err, ErrRunNotIndexed), errors.Is(err, engine.ErrRunNotFound), errors.Is(err, ErrSnapshotNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, engine.ErrNotAwaitingApproval), errors.Is(err, engine.ErrRunTerminal):
		return conflict(c, err.Error())
	default:
		return internalError(c, err)
	}
}

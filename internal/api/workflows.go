package api

import (
	"github.com/dukex/aob/internal/graph"
	"github.com/gofiber/fiber/v3"
)

// CreateWorkflow compiles the YAML body as a WorkflowSpec (§4.1) and, on
// success, persists it for later Resume recompilation.
func (a *API) CreateWorkflow(c fiber.Ctx) error {
	spec, g, err := graph.CompileYAML(c.Body())
	if err != nil {
		return handleEngineError(c, err)
	}

	if err := a.specs.Save(c.Context(), spec); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":             spec.ID,
		"start_node":     g.StartID,
		"terminal_nodes": g.TerminalNodes(),
	})
}

// GetWorkflow returns the stored spec for id.
func (a *API) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	spec, err := a.specs.Get(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(spec)
}

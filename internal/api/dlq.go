package api

import "github.com/gofiber/fiber/v3"

// ListDLQ returns quarantined outbox entries (§4.9). The ready_for_retry
// query param narrows the list to entries whose quarantine window has
// elapsed.
func (a *API) ListDLQ(c fiber.Ctx) error {
	readyForRetry := c.Query("ready_for_retry") == "true"

	entries, err := a.dlq.List(c.Context(), readyForRetry)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(entries)
}

// RequeueDLQ resets a quarantined entry's publication state so the
// outbox publisher's next scan picks it up again (§4.9 S6).
func (a *API) RequeueDLQ(c fiber.Ctx) error {
	eventID := c.Params("id")

	if err := a.dlq.Requeue(c.Context(), eventID); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// PurgeDLQ permanently removes a quarantined entry without republishing it.
func (a *API) PurgeDLQ(c fiber.Ctx) error {
	eventID := c.Params("id")

	if err := a.dlq.Purge(c.Context(), eventID); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// headerRevision tags aggregate snapshots with the revision they were
// taken at, and carries the start cursor of SSE subscriptions.
const headerRevision = "X-Revision"

// GetPersons handles GET /persons: the whole person aggregate keyed by
// id, tagged with the snapshot revision.
func GetPersons(c *fiber.Ctx) error {
	persons, revision, err := agg.GetPersons()
	if err != nil {
		return errorResponse(c, err)
	}
	c.Set(headerRevision, strconv.FormatUint(revision, 10))
	return c.JSON(persons)
}

// GetLocations handles GET /locations.
func GetLocations(c *fiber.Ctx) error {
	locations, revision, err := agg.GetLocations()
	if err != nil {
		return errorResponse(c, err)
	}
	c.Set(headerRevision, strconv.FormatUint(revision, 10))
	return c.JSON(locations)
}

package handler

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/mouton0815/aggregate-event-duality/internal/model"
	"github.com/mouton0815/aggregate-event-duality/internal/patch"
)

// CreatePerson handles POST /persons. The person row, the derived
// location change and both outbox events are written in a single store
// transaction by the aggregator.
func CreatePerson(c *fiber.Ctx) error {
	var input model.Person
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": false, "error": "invalid request body"})
	}

	person, revision, err := agg.CreatePerson(input)
	if err != nil {
		return errorResponse(c, err)
	}

	c.Set(fiber.HeaderLocation, fmt.Sprintf("/persons/%d", person.ID))
	c.Set(headerRevision, strconv.FormatUint(revision, 10))
	return c.Status(fiber.StatusCreated).JSON(struct {
		ID uint64 `json:"id"`
		model.Person
	}{person.ID, person})
}

// UpdatePerson handles PATCH /persons/{id} with an RFC 7396 merge patch
// over name, city and spouseId.
func UpdatePerson(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": false, "error": "invalid person id"})
	}

	var pp patch.PersonPatch
	if err := c.BodyParser(&pp); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": false, "error": "invalid request body"})
	}

	person, revision, err := agg.UpdatePerson(id, pp)
	if err != nil {
		return errorResponse(c, err)
	}

	c.Set(headerRevision, strconv.FormatUint(revision, 10))
	return c.JSON(person)
}

// DeletePerson handles DELETE /persons/{id}. Deleting a married person
// clears the spouse on the counterpart.
func DeletePerson(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": false, "error": "invalid person id"})
	}

	revision, err := agg.DeletePerson(id)
	if err != nil {
		return errorResponse(c, err)
	}

	c.Set(headerRevision, strconv.FormatUint(revision, 10))
	return c.SendStatus(fiber.StatusNoContent)
}

func parseID(c *fiber.Ctx) (uint64, error) {
	return strconv.ParseUint(c.Params("id"), 10, 64)
}

package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/mouton0815/aggregate-event-duality/internal/aggregator"
	"github.com/mouton0815/aggregate-event-duality/internal/broker"
)

var (
	agg        *aggregator.Aggregator
	brk        *broker.Broker
	keepAlive  time.Duration
	batchLimit int
)

// Setup wires the handlers to the aggregator and broker. Must be called
// before any route is registered.
func Setup(a *aggregator.Aggregator, b *broker.Broker, sseKeepAlive time.Duration, limit int) {
	agg = a
	brk = b
	keepAlive = sseKeepAlive
	batchLimit = limit
}

func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": true})
}

// errorResponse maps aggregator errors to HTTP status codes.
func errorResponse(c *fiber.Ctx, err error) error {
	var verr *aggregator.ValidationError
	status := fiber.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = fiber.StatusBadRequest
	case errors.Is(err, aggregator.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, aggregator.ErrConflict):
		status = fiber.StatusConflict
	default:
		logrus.WithError(err).Error("Command failed")
	}
	return c.Status(status).JSON(fiber.Map{"status": false, "error": err.Error()})
}

package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/mouton0815/aggregate-event-duality/internal/handler"
)

// New builds the fiber application with all routes registered.
// handler.Setup must have been called before.
func New() *fiber.App {
	app := fiber.New(fiber.Config{})
	app.Use(cors.New())
	app.Use(recover.New())
	setupRouter(app)
	return app
}

func setupRouter(fiber_app *fiber.App) {
	api := fiber_app.Group("", logger.New())

	api.Get("/healthz", handler.Health)

	// Person commands and aggregate reads
	api.Post("/persons", handler.CreatePerson)
	api.Patch("/persons/:id", handler.UpdatePerson)
	api.Delete("/persons/:id", handler.DeletePerson)
	api.Get("/persons", handler.GetPersons)
	api.Get("/locations", handler.GetLocations)

	// SSE event streams
	api.Get("/person-events", handler.PersonEvents)
	api.Get("/location-events", handler.LocationEvents)
}

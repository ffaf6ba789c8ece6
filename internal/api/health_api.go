package api

import (
	"context"
	"time"

	"go-datasync/internal/database"

	"github.com/gofiber/fiber/v2"
)

type HealthApi struct {
	checks map[string]func(ctx context.Context) error
}

func NewHealthApi(mongodb *database.MongodbDB, dest *database.DestinationDB) Route {
	return &HealthApi{
		checks: map[string]func(ctx context.Context) error{
			"metadata":    mongodb.Ping,
			"destination": dest.DB.PingContext,
		},
	}
}

// Setup registers health check route
func (h *HealthApi) Setup(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
}

// HealthCheck reports the reachability of the metadata and destination databases
func (h *HealthApi) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	report := fiber.Map{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = fiber.StatusServiceUnavailable
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}

	return c.Status(status).JSON(report)
}

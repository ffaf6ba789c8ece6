package schedule

import (
	"errors"

	"go-datasync/internal/syncerr"

	"github.com/gofiber/fiber/v2"
)

type ScheduleController struct {
	Service ScheduleService
}

func NewScheduleController(service ScheduleService) *ScheduleController {
	return &ScheduleController{
		Service: service,
	}
}

type scheduleRequest struct {
	Schedule string `json:"schedule"`
}

// SetSchedule stores or clears the cron schedule of a profile
func (ctrl *ScheduleController) SetSchedule(c *fiber.Ctx) error {
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	profile, err := ctrl.Service.SetSchedule(c.Context(), c.Params("id"), req.Schedule)
	if err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, syncerr.ErrNotFound):
			status = fiber.StatusNotFound
		case errors.Is(err, syncerr.ErrConfiguration):
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	body := fiber.Map{
		"message": "Schedule updated",
		"data":    profile,
	}
	if next, ok := ctrl.Service.NextRun(c.Params("id")); ok && !next.IsZero() {
		body["next_run"] = next
	}
	return c.JSON(body)
}

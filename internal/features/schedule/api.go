package schedule

import (
	"go-datasync/internal/api"
	"go-datasync/internal/config"
	"go-datasync/internal/middleware"
	"go-datasync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type ScheduleApi struct {
	controller *ScheduleController
	config     *config.Config
	validator  *utils.TokenValidator
}

func NewScheduleApi(controller *ScheduleController, config *config.Config, validator *utils.TokenValidator) api.Route {
	return &ScheduleApi{
		controller: controller,
		config:     config,
		validator:  validator,
	}
}

func (h *ScheduleApi) Setup(app *fiber.App) {
	profiles := app.Group("/api/sync/profiles", middleware.AuthMiddleware(h.validator, h.config.SkipAuth))

	profiles.Put("/:id/schedule", h.controller.SetSchedule)
}

package sync

import (
	"go-datasync/internal/api"
	"go-datasync/internal/config"
	"go-datasync/internal/middleware"
	"go-datasync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type SyncApi struct {
	controller *SyncController
	config     *config.Config
	validator  *utils.TokenValidator
}

func NewSyncApi(controller *SyncController, config *config.Config, validator *utils.TokenValidator) api.Route {
	return &SyncApi{
		controller: controller,
		config:     config,
		validator:  validator,
	}
}

// Setup registers all sync routes
func (h *SyncApi) Setup(app *fiber.App) {
	syncGroup := app.Group("/api/sync", middleware.AuthMiddleware(h.validator, h.config.SkipAuth))

	syncGroup.Post("/sources", h.controller.CreateSource)
	syncGroup.Get("/sources", h.controller.ListSources)
	syncGroup.Get("/sources/:id", h.controller.GetSource)
	syncGroup.Post("/sources/:id/test", h.controller.TestSource)
	syncGroup.Get("/sources/:id/datasets", h.controller.ListDatasets)
	syncGroup.Get("/sources/:id/datasets/:dataset/schema", h.controller.PreviewSchema)

	syncGroup.Post("/profiles", h.controller.EnsureProfile)
	syncGroup.Get("/profiles", h.controller.ListProfiles)
	syncGroup.Get("/profiles/:id", h.controller.GetProfile)

	syncGroup.Post("/profiles/:id/versions", h.controller.CreateVersion)
	syncGroup.Get("/profiles/:id/versions", h.controller.ListVersions)
	syncGroup.Post("/profiles/:id/versions/:versionId/activate", h.controller.ActivateVersion)

	syncGroup.Post("/profiles/:id/run", h.controller.RunSync)
	syncGroup.Get("/profiles/:id/runs", h.controller.ListRuns)
	syncGroup.Get("/runs/:id/logs", h.controller.ListRunLogs)
}

package sync

import (
	"errors"
	"strconv"

	"go-datasync/internal/models"
	"go-datasync/internal/syncerr"

	"github.com/gofiber/fiber/v2"
)

type SyncController struct {
	Service SyncService
}

func NewSyncController(service SyncService) *SyncController {
	return &SyncController{
		Service: service,
	}
}

// statusFor maps the error taxonomy onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, syncerr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, syncerr.ErrConfiguration), errors.Is(err, syncerr.ErrCapability):
		return fiber.StatusBadRequest
	case errors.Is(err, syncerr.ErrRunInProgress), errors.Is(err, syncerr.ErrSchemaDrift), errors.Is(err, syncerr.ErrNoActiveVersion):
		return fiber.StatusConflict
	case errors.Is(err, syncerr.ErrTransientIO):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid request body",
	})
}

// CreateSource registers a named source connection
func (ctrl *SyncController) CreateSource(c *fiber.Ctx) error {
	var source models.ExtractSource
	if err := c.BodyParser(&source); err != nil {
		return invalidBody(c)
	}

	if err := ctrl.Service.CreateSource(c.Context(), &source); err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Source created successfully",
		"data":    source,
	})
}

func (ctrl *SyncController) ListSources(c *fiber.Ctx) error {
	sources, err := ctrl.Service.ListSources(c.Context())
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": sources,
	})
}

func (ctrl *SyncController) GetSource(c *fiber.Ctx) error {
	source, err := ctrl.Service.GetSource(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": source,
	})
}

// TestSource probes the source connection
func (ctrl *SyncController) TestSource(c *fiber.Ctx) error {
	if err := ctrl.Service.TestSource(c.Context(), c.Params("id")); err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Connection successful",
	})
}

func (ctrl *SyncController) ListDatasets(c *fiber.Ctx) error {
	datasets, err := ctrl.Service.ListDatasets(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": datasets,
	})
}

// PreviewSchema returns the live schema of one dataset
func (ctrl *SyncController) PreviewSchema(c *fiber.Ctx) error {
	schema, err := ctrl.Service.PreviewSchema(c.Context(), c.Params("id"), c.Params("dataset"))
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": schema,
	})
}

// EnsureProfile creates or returns the profile of a source dataset
func (ctrl *SyncController) EnsureProfile(c *fiber.Ctx) error {
	var req ProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	profile, err := ctrl.Service.EnsureProfile(c.Context(), req)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": profile,
	})
}

func (ctrl *SyncController) ListProfiles(c *fiber.Ctx) error {
	profiles, err := ctrl.Service.ListProfiles(c.Context())
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": profiles,
	})
}

func (ctrl *SyncController) GetProfile(c *fiber.Ctx) error {
	profile, err := ctrl.Service.GetProfile(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": profile,
	})
}

// CreateVersion captures a new schema version of a profile
func (ctrl *SyncController) CreateVersion(c *fiber.Ctx) error {
	var req VersionRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	version, err := ctrl.Service.CreateSchemaVersion(c.Context(), c.Params("id"), req)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Schema version ready",
		"data":    version,
	})
}

func (ctrl *SyncController) ListVersions(c *fiber.Ctx) error {
	versions, err := ctrl.Service.ListVersions(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": versions,
	})
}

func (ctrl *SyncController) ActivateVersion(c *fiber.Ctx) error {
	profile, err := ctrl.Service.ActivateVersion(c.Context(), c.Params("id"), c.Params("versionId"))
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Schema version activated",
		"data":    profile,
	})
}

// RunSync triggers a manual sync and waits for its outcome
func (ctrl *SyncController) RunSync(c *fiber.Ctx) error {
	run, err := ctrl.Service.RunSync(c.Context(), c.Params("id"))
	if err != nil {
		body := fiber.Map{"error": err.Error()}
		if run != nil {
			body["data"] = run
		}
		return c.Status(statusFor(err)).JSON(body)
	}

	return c.JSON(fiber.Map{
		"message": "Sync completed",
		"data":    run,
	})
}

func (ctrl *SyncController) ListRuns(c *fiber.Ctx) error {
	limit, _ := strconv.ParseInt(c.Query("limit", "50"), 10, 64)

	runs, err := ctrl.Service.ListRuns(c.Context(), c.Params("id"), limit)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": runs,
	})
}

func (ctrl *SyncController) ListRunLogs(c *fiber.Ctx) error {
	logs, err := ctrl.Service.ListRunLogs(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": logs,
	})
}

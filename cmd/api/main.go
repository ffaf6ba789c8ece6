package main

import (
	"context"
	"fmt"
	"log"

	"go-datasync/internal/api"
	"go-datasync/internal/app"
	"go-datasync/internal/config"
	"go-datasync/internal/features/schedule"
	sync_feature "go-datasync/internal/features/sync"
	"go-datasync/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Use custom CORS middleware
	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(api.Route)),           // Cast to Interface
		fx.ResultTags(`group:"routes"`), // Add to Group
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []api.Route) {
	log.Printf("Registering %d routes...\n", len(routes))
	for i, route := range routes {
		log.Printf("Setting up route %d: %T\n", i+1, route)
		route.Setup(app)
	}
	log.Println("All routes registered successfully")
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// StartScheduler runs scheduled profiles while the server is up
func StartScheduler(lc fx.Lifecycle, scheduleService schedule.ScheduleService) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduleService.InitializeScheduler(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduleService.StopScheduler()
		},
	})
}

func main() {
	server := fx.New(
		app.Module,
		fx.Provide(
			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Service
			schedule.NewScheduleService,

			// Initialize Controller
			sync_feature.NewSyncController,
			schedule.NewScheduleController,

			// Initialize API Routes
			AsRoute(api.NewHealthApi),
			AsRoute(sync_feature.NewSyncApi),
			AsRoute(schedule.NewScheduleApi),
		),
		fx.Invoke(
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			StartScheduler,
		),
	)

	server.Run()
}

package router

import (
	"log"

	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pathakanu/myJournal/internal/handlers"
	"github.com/pathakanu/myJournal/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New creates an Echo instance with global middleware, validation and envelope error rendering.
func New() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler
	SetupMiddleware(e)
	return e
}

// SetupMiddleware configures global Echo middleware.
func SetupMiddleware(e *echo.Echo) {
	e.Pre(eMiddleware.RemoveTrailingSlash())
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
}

// SetupRoutes registers every route of the reminder API.
func SetupRoutes(e *echo.Echo, reminders *handlers.ReminderHandler, status handlers.StatusReporter, logger *log.Logger) {
	e.GET("/health", handlers.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/api/v1/scheduler/status", handlers.SchedulerStatus(status))

	api := e.Group("/api/v1/reminders", middleware.UserID())
	reminders.RegisterReminderRoutes(api)

	logger.Printf("router: routes configured")
}

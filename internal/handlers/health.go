package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pathakanu/myJournal/internal/scheduler"
)

// StatusReporter exposes the scheduler loop state.
type StatusReporter interface {
	Status() scheduler.Status
}

func HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "myjournal-reminders",
	})
}

// SchedulerStatus reports whether the reminder loop runs and when it fires next.
func SchedulerStatus(s StatusReporter) echo.HandlerFunc {
	return func(c echo.Context) error {
		return success(c, http.StatusOK, s.Status(), "ok")
	}
}

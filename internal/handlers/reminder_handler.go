package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pathakanu/myJournal/internal/middleware"
	"github.com/pathakanu/myJournal/internal/model"
	"github.com/pathakanu/myJournal/internal/reminder"
	"github.com/pathakanu/myJournal/internal/store"
)

// ReminderService is the reminder API used by the handler.
type ReminderService interface {
	Create(ctx context.Context, userID string, in reminder.CreateInput) (*model.Reminder, error)
	List(ctx context.Context, userID string, opts reminder.ListOptions) (*reminder.Page, error)
	Get(ctx context.Context, id, userID string) (*model.Reminder, error)
	Update(ctx context.Context, id, userID string, in reminder.UpdateInput) (*model.Reminder, error)
	Delete(ctx context.Context, id, userID string) error
	BatchDelete(ctx context.Context, ids []string, userID string) (int64, error)
	Subscribe(ctx context.Context, id, userID string) (*model.Reminder, error)
	Cancel(ctx context.Context, id, userID string) (*model.Reminder, error)
}

// ReminderHandler handles reminder-related HTTP requests.
type ReminderHandler struct {
	service ReminderService
	logger  *log.Logger
}

func NewReminderHandler(service ReminderService, logger *log.Logger) *ReminderHandler {
	return &ReminderHandler{service: service, logger: logger}
}

// RegisterReminderRoutes registers the reminder routes on a group that already carries the user middleware.
func (h *ReminderHandler) RegisterReminderRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.POST("/batch-delete", h.BatchDelete)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/subscribe", h.Subscribe)
	g.POST("/:id/cancel", h.Cancel)
}

type createReminderRequest struct {
	NoteID     string    `json:"noteId" validate:"required"`
	Title      string    `json:"title" validate:"max=200"`
	Content    string    `json:"content" validate:"max=500"`
	MessageID  string    `json:"messageId" validate:"max=128"`
	RemindTime time.Time `json:"remindTime" validate:"required"`
}

type updateReminderRequest struct {
	Title              *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Content            *string    `json:"content" validate:"omitempty,min=1,max=500"`
	RemindTime         *time.Time `json:"remindTime"`
	SubscriptionStatus *string    `json:"subscriptionStatus" validate:"omitempty,oneof=pending subscribed cancelled"`
}

type listRemindersRequest struct {
	Page       int    `query:"page" validate:"omitempty,min=1"`
	Limit      int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Status     string `query:"status" validate:"omitempty,oneof=pending subscribed cancelled"`
	SendStatus string `query:"sendStatus" validate:"omitempty,oneof=pending sent failed"`
}

type batchDeleteRequest struct {
	ReminderIDs []string `json:"reminderIds" validate:"required,min=1,dive,required"`
}

func (h *ReminderHandler) List(c echo.Context) error {
	var req listRemindersRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, CodeParamError, "invalid query parameters")
	}
	if err := c.Validate(&req); err != nil {
		return failure(c, http.StatusBadRequest, CodeParamError, "parameter validation failed")
	}

	page, err := h.service.List(c.Request().Context(), middleware.UserIDFrom(c), reminder.ListOptions{
		Page:               req.Page,
		Limit:              req.Limit,
		SubscriptionStatus: model.SubscriptionStatus(req.Status),
		SendStatus:         model.SendStatus(req.SendStatus),
	})
	if err != nil {
		return h.fail(c, "list reminders", err)
	}
	return success(c, http.StatusOK, page, "reminders listed")
}

func (h *ReminderHandler) Get(c echo.Context) error {
	r, err := h.service.Get(c.Request().Context(), c.Param("id"), middleware.UserIDFrom(c))
	if err != nil {
		return h.fail(c, "get reminder", err)
	}
	return success(c, http.StatusOK, r, "reminder found")
}

func (h *ReminderHandler) Create(c echo.Context) error {
	var req createReminderRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, CodeParamError, "invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return failure(c, http.StatusBadRequest, CodeParamError, "parameter validation failed")
	}

	r, err := h.service.Create(c.Request().Context(), middleware.UserIDFrom(c), reminder.CreateInput{
		NoteID:     req.NoteID,
		Title:      req.Title,
		Content:    req.Content,
		MessageID:  req.MessageID,
		RemindTime: req.RemindTime,
	})
	if err != nil {
		return h.fail(c, "create reminder", err)
	}
	return success(c, http.StatusCreated, r, "reminder created")
}

func (h *ReminderHandler) Update(c echo.Context) error {
	var req updateReminderRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, CodeParamError, "invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return failure(c, http.StatusBadRequest, CodeParamError, "parameter validation failed")
	}

	in := reminder.UpdateInput{Title: req.Title, Content: req.Content, RemindTime: req.RemindTime}
	if req.SubscriptionStatus != nil {
		status := model.SubscriptionStatus(*req.SubscriptionStatus)
		in.SubscriptionStatus = &status
	}

	r, err := h.service.Update(c.Request().Context(), c.Param("id"), middleware.UserIDFrom(c), in)
	if err != nil {
		return h.fail(c, "update reminder", err)
	}
	return success(c, http.StatusOK, r, "reminder updated")
}

func (h *ReminderHandler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id"), middleware.UserIDFrom(c)); err != nil {
		return h.fail(c, "delete reminder", err)
	}
	return success(c, http.StatusOK, map[string]bool{"deleted": true}, "reminder deleted")
}

func (h *ReminderHandler) BatchDelete(c echo.Context) error {
	var req batchDeleteRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, CodeParamError, "invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return failure(c, http.StatusBadRequest, CodeParamError, "parameter validation failed")
	}

	deleted, err := h.service.BatchDelete(c.Request().Context(), req.ReminderIDs, middleware.UserIDFrom(c))
	if err != nil {
		return h.fail(c, "batch delete reminders", err)
	}
	return success(c, http.StatusOK, map[string]int64{"deletedCount": deleted}, "reminders deleted")
}

func (h *ReminderHandler) Subscribe(c echo.Context) error {
	r, err := h.service.Subscribe(c.Request().Context(), c.Param("id"), middleware.UserIDFrom(c))
	if err != nil {
		return h.fail(c, "subscribe reminder", err)
	}
	return success(c, http.StatusOK, r, "reminder subscribed")
}

func (h *ReminderHandler) Cancel(c echo.Context) error {
	r, err := h.service.Cancel(c.Request().Context(), c.Param("id"), middleware.UserIDFrom(c))
	if err != nil {
		return h.fail(c, "cancel reminder", err)
	}
	return success(c, http.StatusOK, r, "subscription cancelled")
}

func (h *ReminderHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return failure(c, http.StatusNotFound, CodeNotFound, "reminder not found")
	case errors.Is(err, reminder.ErrNoteNotFound):
		return failure(c, http.StatusNotFound, CodeNoteNotFound, "note not found or not accessible")
	case errors.Is(err, model.ErrInvalidTransition):
		return failure(c, http.StatusConflict, CodeInvalidTransition, err.Error())
	case errors.Is(err, reminder.ErrInvalidInput):
		return failure(c, http.StatusBadRequest, CodeParamError, err.Error())
	}
	h.logger.Printf("handlers: %s: %v", op, err)
	return failure(c, http.StatusInternalServerError, CodeInternal, op+" failed")
}

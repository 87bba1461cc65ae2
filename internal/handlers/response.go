package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Response codes carried in the envelope.
const (
	CodeOK                = 0
	CodeParamError        = 1001
	CodeNotFound          = 1004
	CodeUnauthorized      = 1006
	CodeNoteNotFound      = 2002
	CodeInvalidTransition = 4001
	CodeInternal          = 9999
)

// Envelope is the body of every API response.
type Envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

func success(c echo.Context, status int, data any, message string) error {
	return c.JSON(status, Envelope{Code: CodeOK, Message: message, Data: data, Timestamp: time.Now().UnixMilli()})
}

func failure(c echo.Context, status, code int, message string) error {
	return c.JSON(status, Envelope{Code: code, Message: message, Timestamp: time.Now().UnixMilli()})
}

// Validator adapts go-playground/validator to echo.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// ErrorHandler renders errors that escape handlers, including middleware and routing errors, as envelopes.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := http.StatusText(status)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(status)
		}
	}

	code := CodeInternal
	switch status {
	case http.StatusBadRequest:
		code = CodeParamError
	case http.StatusUnauthorized:
		code = CodeUnauthorized
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		code = CodeNotFound
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = failure(c, status, code, message)
}

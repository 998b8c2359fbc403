package handler

import (
	"errors"
	"net/http"

	"github.com/abdusco/shortlink/internal"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

var errorStatus = []struct {
	err  error
	code int
}{
	{internal.ErrInvalidURL, http.StatusBadRequest},
	{internal.ErrInvalidValidityPeriod, http.StatusBadRequest},
	{internal.ErrCodeConflict, http.StatusConflict},
	{internal.ErrCapacityExceeded, http.StatusUnprocessableEntity},
	{internal.ErrCodeSpaceExhausted, http.StatusServiceUnavailable},
	{internal.ErrNotFound, http.StatusNotFound},
	{internal.ErrExpired, http.StatusGone},
}

// toHTTPError maps registry errors to HTTP errors. Anything unknown becomes
// a 500 without leaking its message.
func toHTTPError(err error) *echo.HTTPError {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return echo.NewHTTPError(e.code, err.Error()).SetInternal(err)
		}
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

// ErrorHandler renders every error as {"error": message}.
func ErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	message := "internal server error"

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	}

	event := log.Warn()
	if code >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.
		Int("code", code).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Err(err).
		Msg("http error")

	if c.Response().Committed {
		return
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(code)
		return
	}

	c.JSON(code, map[string]any{
		"error": message,
	})
}

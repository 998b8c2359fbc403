package handler

import (
	"net/http"

	"github.com/abdusco/shortlink/internal/analytics"
	"github.com/abdusco/shortlink/internal/registry"
	"github.com/labstack/echo/v4"
)

const defaultTopLimit = 5

type AnalyticsHandler struct {
	registry *registry.Registry
}

func NewAnalyticsHandler(reg *registry.Registry) *AnalyticsHandler {
	return &AnalyticsHandler{registry: reg}
}

// Report serves totals and breakdowns computed from the current links.
func (h *AnalyticsHandler) Report(c echo.Context) error {
	limit, err := queryLimit(c, defaultTopLimit)
	if err != nil {
		return err
	}

	report := analytics.Compute(h.registry.List(), h.registry.Now(), limit)
	return c.JSON(http.StatusOK, report)
}

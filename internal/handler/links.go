package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/analytics"
	"github.com/abdusco/shortlink/internal/logger"
	"github.com/abdusco/shortlink/internal/registry"
	"github.com/abdusco/shortlink/internal/tagging"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	defaultValidityMinutes = 30
	defaultClicksLimit     = 5
)

type LinkHandler struct {
	registry *registry.Registry
	resolver *registry.Resolver
	tagger   tagging.Tagger
	baseURL  string
}

func NewLinkHandler(reg *registry.Registry, tagger tagging.Tagger, baseURL string) *LinkHandler {
	return &LinkHandler{
		registry: reg,
		resolver: registry.NewResolver(reg),
		tagger:   tagger,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

type CreateLinkRequest struct {
	URL             string `json:"url"`
	CustomCode      string `json:"custom_code"`
	ValidityMinutes *int   `json:"validity_minutes"`
}

func (r *CreateLinkRequest) toParams() registry.CreateParams {
	p := registry.CreateParams{
		OriginalURL:     r.URL,
		ValidityMinutes: lo.FromPtrOr(r.ValidityMinutes, defaultValidityMinutes),
	}
	if r.CustomCode != "" {
		p.CustomCode = lo.ToPtr(r.CustomCode)
	}
	return p
}

type LinkResponse struct {
	ID              string    `json:"id"`
	ShortCode       string    `json:"short_code"`
	ShortURL        string    `json:"short_url"`
	OriginalURL     string    `json:"original_url"`
	IsCustom        bool      `json:"is_custom"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	ValidityMinutes int       `json:"validity_minutes"`
	ClickCount      int64     `json:"click_count"`
	IsExpired       bool      `json:"is_expired"`
	IsActive        bool      `json:"is_active"`
}

// API Response wrappers
type CreateLinkResponse struct {
	Link LinkResponse `json:"link"`
}

type ListLinksResponse struct {
	Links []LinkResponse `json:"links"`
}

type ClicksResponse struct {
	Code   string                `json:"code"`
	Total  int64                 `json:"total"`
	Clicks []internal.ClickEvent `json:"clicks"`
}

func (h *LinkHandler) toResponse(link internal.Link, now time.Time) LinkResponse {
	return LinkResponse{
		ID:              link.ID,
		ShortCode:       link.ShortCode,
		ShortURL:        h.baseURL + "/" + link.ShortCode,
		OriginalURL:     link.OriginalURL,
		IsCustom:        link.IsCustom,
		CreatedAt:       link.CreatedAt,
		ExpiresAt:       link.ExpiresAt,
		ValidityMinutes: link.ValidityMinutes,
		ClickCount:      link.ClickCount,
		IsExpired:       link.IsExpired(now),
		IsActive:        link.IsActive(now),
	}
}

func (h *LinkHandler) CreateLink(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	link, err := h.registry.Create(ctx, req.toParams())
	if err != nil {
		log.Warn().Err(err).Str("url", req.URL).Str("custom_code", req.CustomCode).Msg("failed to create link")
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, CreateLinkResponse{Link: h.toResponse(link, h.registry.Now())})
}

func (h *LinkHandler) ListLinks(c echo.Context) error {
	now := h.registry.Now()
	links := lo.Map(h.registry.List(), func(link internal.Link, _ int) LinkResponse {
		return h.toResponse(link, now)
	})

	return c.JSON(http.StatusOK, ListLinksResponse{Links: links})
}

// GetLink looks a link up by short code or id.
func (h *LinkHandler) GetLink(c echo.Context) error {
	link, err := h.registry.Get(c.Param("ref"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, CreateLinkResponse{Link: h.toResponse(link, h.registry.Now())})
}

func (h *LinkHandler) DeleteLink(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := h.registry.Delete(ctx, id); err != nil {
		return toHTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// ListClicks returns the latest clicks of a link, newest first.
func (h *LinkHandler) ListClicks(c echo.Context) error {
	limit, err := queryLimit(c, defaultClicksLimit)
	if err != nil {
		return err
	}

	link, err := h.registry.Get(c.Param("ref"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, ClicksResponse{
		Code:   link.ShortCode,
		Total:  link.ClickCount,
		Clicks: analytics.RecentClicks(link, limit),
	})
}

func (h *LinkHandler) Redirect(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("code")

	l := logger.With("code", code)
	l.Debug().Msg("redirect request")

	target, err := h.resolver.Resolve(ctx, code, h.tagger.Tag(c.Request()))
	if err != nil {
		return toHTTPError(err)
	}

	l.Info().Str("target", target).Msg("redirecting link")

	// 302 so browsers come back through the registry on every visit.
	return c.Redirect(http.StatusFound, target)
}

func queryLimit(c echo.Context, fallback int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return fallback, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
	}
	return limit, nil
}

package routing

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/capacity-router/internal/domain/hospital"
)

// Handler exposes routing over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/route", h.Route)
}

func (h *Handler) Route(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Severity < 0 || req.Severity > 10 {
		return echo.NewHTTPError(http.StatusBadRequest, "severity must be between 0 and 10")
	}

	rec, err := h.svc.Recommend(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, hospital.ErrNoCandidates) {
			return echo.NewHTTPError(http.StatusNotFound, "no candidate hospitals")
		}
		if errors.Is(err, hospital.ErrSourceUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

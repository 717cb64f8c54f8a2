package capacity

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ehr/capacity-router/internal/domain/hospital"
	"github.com/ehr/capacity-router/internal/platform/cache"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checks belong to the reverse proxy in front of this facade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler exposes the snapshot store and fan-out over HTTP. It is a thin
// adapter; all semantics live in the store and fan-out.
type Handler struct {
	store         *SnapshotStore
	fanout        *Fanout
	cache         *cache.Cache
	defaultRadius float64
}

func NewHandler(store *SnapshotStore, fanout *Fanout, c *cache.Cache) *Handler {
	return &Handler{store: store, fanout: fanout, cache: c, defaultRadius: 25}
}

// SetDefaultRadiusKm overrides the nearby-search radius used when the request
// does not pass one.
func (h *Handler) SetDefaultRadiusKm(r float64) {
	if r > 0 {
		h.defaultRadius = r
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/hospitals/nearby", h.GetNearby)
	api.GET("/hospitals/:id/capacity", h.GetCapacity)
	api.POST("/hospitals/capacities", h.GetCapacities)
	api.GET("/cache/stats", h.CacheStats)
}

func (h *Handler) GetCapacity(c echo.Context) error {
	snap, err := h.store.GetCapacity(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) GetCapacities(c echo.Context) error {
	var req struct {
		HospitalIDs []string `json:"hospital_ids"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.HospitalIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "hospital_ids is required")
	}
	snaps, err := h.store.GetCapacities(c.Request().Context(), req.HospitalIDs)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snaps)
}

func (h *Handler) GetNearby(c echo.Context) error {
	lat, err1 := strconv.ParseFloat(c.QueryParam("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.QueryParam("lng"), 64)
	if err1 != nil || err2 != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "lat and lng are required")
	}
	radiusKm := h.defaultRadius
	if raw := c.QueryParam("radius_km"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid radius_km")
		}
		radiusKm = r
	}

	cands, err := h.store.GetNearby(c.Request().Context(), lat, lng, radiusKm)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cands)
}

func (h *Handler) CacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cache.Stats())
}

// Stream upgrades to a websocket and forwards fan-out batches until the
// client goes away. Registered outside the API group so the ws path stays
// distinct from the REST surface.
func (h *Handler) Stream(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := h.fanout.Listen()
	defer sub.Cancel()

	for batch := range sub.C {
		if err := conn.WriteJSON(batch); err != nil {
			return nil
		}
	}
	return nil
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, hospital.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, hospital.ErrSourceUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

package hipaa

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/clinicreport/internal/platform/auth"
	"github.com/ehr/clinicreport/pkg/pagination"
)

type Handler struct {
	log AccessLog
}

func NewHandler(log AccessLog) *Handler {
	return &Handler{log: log}
}

// RegisterRoutes mounts the access log query on the supplied group. Only
// admins may read it.
//
//	GET /audit/phi-access?user_id=&resource_type=&resource_id=&since=
func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/audit/phi-access", h.List)
}

func (h *Handler) List(c echo.Context) error {
	f := AccessFilter{
		UserID:       c.QueryParam("user_id"),
		ResourceType: c.QueryParam("resource_type"),
		ResourceID:   c.QueryParam("resource_id"),
	}
	if s := c.QueryParam("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be an RFC 3339 timestamp")
		}
		f.Since = &since
	}

	pg := pagination.FromContext(c)
	items, total, err := h.log.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read access log")
	}
	if items == nil {
		items = []*AccessEntry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

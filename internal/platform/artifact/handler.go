package artifact

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/clinicreport/internal/platform/auth"
	"github.com/ehr/clinicreport/pkg/pagination"
)

// Handler serves stored report documents.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts artifact routes on the supplied group.
//
//	GET    /consultations/:id/artifacts  - list stored reports, newest first
//	GET    /artifacts/:id/metadata
//	GET    /artifacts/:id                - download
//	DELETE /artifacts/:id
func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleNurse))
	readGroup.GET("/consultations/:id/artifacts", h.ListByConsultation)
	readGroup.GET("/artifacts/:id/metadata", h.GetMetadata)
	readGroup.GET("/artifacts/:id", h.Download)

	// Stored reports are part of the record; only admins remove them.
	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.DELETE("/artifacts/:id", h.Delete)
}

func (h *Handler) Download(c echo.Context) error {
	rc, meta, err := h.store.Open(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	c.Response().Header().Set("X-Content-SHA256", meta.Hash)
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) GetMetadata(c echo.Context) error {
	meta, err := h.store.GetMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *Handler) ListByConsultation(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.store.ListByConsultation(c.Request().Context(), c.Param("id"), pg.Limit, pg.Offset)
	if err != nil {
		return storeError(err)
	}
	if items == nil {
		items = []*Metadata{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func storeError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "artifact not found")
	case errors.Is(err, ErrTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrMissingFileName), errors.Is(err, ErrMissingOwner):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "artifact storage failed")
	}
}

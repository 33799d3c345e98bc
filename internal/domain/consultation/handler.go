package consultation

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicreport/internal/platform/auth"
	"github.com/ehr/clinicreport/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleNurse))
	read.GET("/patients/:id", h.GetPatient)
	read.GET("/patients/:id/consultations", h.ListConsultations)
	read.GET("/consultations/:id", h.GetConsultation)
	read.GET("/consultations/:id/segments", h.ListSegments)

	// Nurses may register patients and capture transcripts; clinical
	// content is written by clinicians.
	capture := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleNurse))
	capture.POST("/patients", h.CreatePatient)
	capture.POST("/consultations/:id/segments", h.AppendSegment)

	write := api.Group("", auth.RequireRole(auth.RoleClinician))
	write.POST("/consultations", h.CreateConsultation)
	write.PUT("/consultations/:id", h.UpdateConsultation)
}

// createdIDKey names the new record for the PHI access log.
const createdIDKey = "resource_id"

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return h.fail(c, err, "patient")
	}
	c.Set(createdIDKey, p.ID.String())
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err, "patient")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListConsultations(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListConsultationsByPatient(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return h.fail(c, err, "consultation")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) CreateConsultation(c echo.Context) error {
	var con Consultation
	if err := c.Bind(&con); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if con.ClinicianID == nil {
		if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
			con.ClinicianID = &uid
		}
	}
	if con.ClinicianName == nil {
		if name := auth.UserNameFromContext(c.Request().Context()); name != "" {
			con.ClinicianName = &name
		}
	}
	if err := h.svc.CreateConsultation(c.Request().Context(), &con); err != nil {
		return h.fail(c, err, "consultation")
	}
	c.Set(createdIDKey, con.ID.String())
	return c.JSON(http.StatusCreated, con)
}

func (h *Handler) GetConsultation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	con, err := h.svc.GetConsultation(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err, "consultation")
	}
	return c.JSON(http.StatusOK, con)
}

func (h *Handler) UpdateConsultation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var con Consultation
	if err := c.Bind(&con); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	con.ID = id
	if err := h.svc.UpdateConsultation(c.Request().Context(), &con); err != nil {
		return h.fail(c, err, "consultation")
	}
	return c.JSON(http.StatusOK, con)
}

func (h *Handler) AppendSegment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var seg TranscriptSegment
	if err := c.Bind(&seg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	seg.ConsultationID = id
	if err := h.svc.AppendSegment(c.Request().Context(), &seg); err != nil {
		return h.fail(c, err, "consultation")
	}
	return c.JSON(http.StatusCreated, seg)
}

func (h *Handler) ListSegments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	segs, err := h.svc.ListSegments(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err, "consultation")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": segs, "total": len(segs)})
}

func (h *Handler) fail(c echo.Context, err error, kind string) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, kind+" not found")
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	h.logger.Error().Err(err).Str("path", c.Path()).Msg("consultation request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

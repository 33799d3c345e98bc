package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicreport/internal/platform/artifact"
	"github.com/ehr/clinicreport/internal/platform/auth"
)

// InputFetcher loads the records a report is generated from. It returns an
// error wrapping ErrSourceNotFound when the consultation or its patient does
// not exist.
type InputFetcher interface {
	FetchReportInput(ctx context.Context, consultationID string) (*Input, error)
}

// Handler provides HTTP endpoints for consultation reports.
type Handler struct {
	gen     *Generator
	fetcher InputFetcher
	store   artifact.Store
	logger  zerolog.Logger
}

func NewHandler(gen *Generator, fetcher InputFetcher, store artifact.Store, logger zerolog.Logger) *Handler {
	return &Handler{gen: gen, fetcher: fetcher, store: store, logger: logger}
}

// RegisterRoutes registers report endpoints on the provided route group.
//
//	GET  /consultations/:id/report  - generate and download
//	POST /consultations/:id/report  - generate and store, returns artifact metadata
//	POST /reports/preview           - generate from an inline input document
func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleNurse))
	readGroup.GET("/consultations/:id/report", h.Download)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleClinician))
	writeGroup.POST("/consultations/:id/report", h.Create)
	writeGroup.POST("/reports/preview", h.Preview)
}

// Download handles GET /consultations/:id/report.
func (h *Handler) Download(c echo.Context) error {
	res, err := h.generateFor(c)
	if err != nil {
		return err
	}

	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf(`inline; filename="%s"`, artifact.FileName(c.Param("id"), res.GeneratedAt)))
	return c.Blob(http.StatusOK, artifact.ContentTypePDF, res.PDF)
}

// Create handles POST /consultations/:id/report.
func (h *Handler) Create(c echo.Context) error {
	if h.store == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "report storage is not configured")
	}

	ctx := c.Request().Context()
	in, err := h.fetch(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	res, err := h.gen.Generate(ctx, *in)
	if err != nil {
		return generationError(err)
	}

	meta, err := h.store.Save(ctx, artifact.Metadata{
		ConsultationID: c.Param("id"),
		PatientID:      in.Patient.ID,
		FileName:       artifact.FileName(c.Param("id"), res.GeneratedAt),
		ContentType:    artifact.ContentTypePDF,
		Pages:          res.Pages,
		GeneratedAt:    res.GeneratedAt,
		CreatedBy:      auth.UserIDFromContext(ctx),
	}, res.PDF)
	if err != nil {
		h.logger.Error().Err(err).Str("consultation_id", c.Param("id")).Msg("failed to store report")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store report")
	}

	return c.JSON(http.StatusCreated, meta)
}

// Preview handles POST /reports/preview. The body is an Input document.
func (h *Handler) Preview(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report input")
	}
	res, err := h.gen.Generate(c.Request().Context(), in)
	if err != nil {
		return generationError(err)
	}
	return c.Blob(http.StatusOK, artifact.ContentTypePDF, res.PDF)
}

func (h *Handler) generateFor(c echo.Context) (*Result, error) {
	ctx := c.Request().Context()
	in, err := h.fetch(ctx, c.Param("id"))
	if err != nil {
		return nil, err
	}
	res, err := h.gen.Generate(ctx, *in)
	if err != nil {
		return nil, generationError(err)
	}
	return res, nil
}

func (h *Handler) fetch(ctx context.Context, consultationID string) (*Input, error) {
	if consultationID == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "consultation ID is required")
	}
	in, err := h.fetcher.FetchReportInput(ctx, consultationID)
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "consultation not found")
		}
		h.logger.Error().Err(err).Str("consultation_id", consultationID).Msg("failed to load report input")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to load consultation")
	}
	return in, nil
}

// generationError maps a Generate failure onto an HTTP error. Internal
// details are logged by the generator and never returned to the client.
func generationError(err error) error {
	switch {
	case errors.Is(err, ErrInput):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "consultation and patient are required")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "report generation cancelled")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "report generation failed, please retry")
	}
}

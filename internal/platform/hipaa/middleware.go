package hipaa

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicreport/internal/platform/auth"
)

type routeAccess struct {
	resource string
	action   string
}

// phiRoutes lists the routes whose responses carry or change PHI, keyed by
// method and echo route pattern relative to the API group.
var phiRoutes = map[string]routeAccess{
	"POST /patients":                   {ResourcePatient, "create"},
	"POST /consultations":              {ResourceConsultation, "create"},
	"GET /patients/:id":                {ResourcePatient, "read"},
	"GET /patients/:id/consultations":  {ResourcePatient, "list_consultations"},
	"GET /consultations/:id":           {ResourceConsultation, "read"},
	"PUT /consultations/:id":           {ResourceConsultation, "update"},
	"GET /consultations/:id/segments":  {ResourceTranscript, "read"},
	"POST /consultations/:id/segments": {ResourceTranscript, "append"},
	"GET /consultations/:id/report":    {ResourceConsultationReport, "download"},
	"POST /consultations/:id/report":   {ResourceConsultationReport, "generate"},
	"POST /reports/preview":            {ResourceConsultationReport, "preview"},
	"GET /consultations/:id/artifacts": {ResourceReportArtifact, "list"},
	"GET /artifacts/:id":               {ResourceReportArtifact, "download"},
	"GET /artifacts/:id/metadata":      {ResourceReportArtifact, "read"},
	"DELETE /artifacts/:id":            {ResourceReportArtifact, "delete"},
}

// ResourceIDKey is the echo context key a handler sets when the route has no
// :id parameter, such as the id of a record it just created.
const ResourceIDKey = "resource_id"

// AccessLogger records every request to a PHI route under prefix, including
// denied and failed ones. Recording failures are logged and never fail the
// request.
func AccessLogger(log AccessLog, prefix string, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			ra, ok := phiRoutes[c.Request().Method+" "+trimPrefix(c.Path(), prefix)]
			if !ok {
				return err
			}

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			resourceID := c.Param("id")
			if resourceID == "" {
				resourceID, _ = c.Get(ResourceIDKey).(string)
			}

			ctx := c.Request().Context()
			rid, _ := c.Get("request_id").(string)
			entry := &AccessEntry{
				UserID:       auth.UserIDFromContext(ctx),
				UserName:     auth.UserNameFromContext(ctx),
				Roles:        auth.RolesFromContext(ctx),
				ResourceType: ra.resource,
				ResourceID:   resourceID,
				Action:       ra.action,
				Status:       status,
				IPAddress:    c.RealIP(),
				UserAgent:    c.Request().UserAgent(),
				RequestID:    rid,
			}
			if rerr := log.Record(ctx, entry); rerr != nil {
				logger.Error().Err(rerr).
					Str("resource_type", entry.ResourceType).
					Str("resource_id", entry.ResourceID).
					Str("user_id", entry.UserID).
					Msg("failed to record phi access")
			}
			return err
		}
	}
}

func trimPrefix(path, prefix string) string {
	if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return path
}

package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// PreviewPath receives whole report inputs, transcripts included.
const PreviewPath = "/api/v1/reports/preview"

// BodyLimit caps request bodies at defaultLimit, or previewLimit for report
// previews. Limits use echo's size syntax, e.g. "1M" or "512K".
func BodyLimit(defaultLimit, previewLimit string) echo.MiddlewareFunc {
	def := echomw.BodyLimit(defaultLimit)
	preview := echomw.BodyLimit(previewLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		d, p := def(next), preview(next)
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method == http.MethodPost && req.URL.Path == PreviewPath {
				return p(c)
			}
			return d(c)
		}
	}
}

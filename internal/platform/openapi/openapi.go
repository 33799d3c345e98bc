package openapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// RouteLister is satisfied by *echo.Echo.
type RouteLister interface {
	Routes() []*echo.Route
}

// Generator builds an OpenAPI 3.0 document from the registered API routes.
// Routes are read on every request so the document reflects handlers
// registered after the generator was created.
type Generator struct {
	routes  RouteLister
	prefix  string
	version string
	baseURL string
}

// NewGenerator documents the routes under prefix, e.g. "/api/v1".
func NewGenerator(routes RouteLister, prefix, version, baseURL string) *Generator {
	return &Generator{routes: routes, prefix: prefix, version: version, baseURL: baseURL}
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]map[string]interface{})

	routes := g.routes.Routes()
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})

	for _, r := range routes {
		if !strings.HasPrefix(r.Path, g.prefix+"/") {
			continue
		}
		method := strings.ToLower(r.Method)
		switch method {
		case "get", "post", "put", "delete":
		default:
			continue
		}

		path, params := openAPIPath(r.Path)
		if paths[path] == nil {
			paths[path] = make(map[string]interface{})
		}
		op := map[string]interface{}{
			"operationId": operationID(r.Name),
			"tags":        []string{tagFor(strings.TrimPrefix(path, g.prefix))},
			"responses":   responsesFor(r.Method, path),
		}
		if len(params) > 0 {
			op["parameters"] = params
		}
		if body := requestBodyFor(r.Method, path); body != nil {
			op["requestBody"] = body
		}
		paths[path][method] = op
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Clinic Report API",
			"version":     g.version,
			"description": "Consultation records and PDF consultation reports",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": componentSchemas(),
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]string{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
		"security": []map[string][]string{{"bearerAuth": {}}},
	}
}

// openAPIPath rewrites echo's :param segments as {param}.
func openAPIPath(path string) (string, []map[string]interface{}) {
	var params []map[string]interface{}
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if strings.HasPrefix(s, ":") {
			name := s[1:]
			segs[i] = "{" + name + "}"
			params = append(params, map[string]interface{}{
				"name": name, "in": "path", "required": true,
				"schema": map[string]string{"type": "string"},
			})
		}
	}
	return strings.Join(segs, "/"), params
}

// tagFor groups operations by their first path segment.
func tagFor(path string) string {
	seg := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
	if seg == "" {
		return "default"
	}
	return seg
}

// operationID strips the package path from echo's handler name, e.g.
// "github.com/x/report.(*Handler).Download-fm" becomes "report.Download".
func operationID(name string) string {
	name = name[strings.LastIndex(name, "/")+1:]
	name = strings.TrimSuffix(name, "-fm")
	return strings.Replace(name, ".(*Handler)", "", 1)
}

func requestBodyFor(method, path string) map[string]interface{} {
	if method != http.MethodPost && method != http.MethodPut {
		return nil
	}
	var ref string
	switch {
	case strings.HasSuffix(path, "/reports/preview"):
		ref = "ReportInput"
	case strings.HasSuffix(path, "/segments"):
		ref = "TranscriptSegment"
	case strings.HasSuffix(path, "/patients"):
		ref = "Patient"
	case strings.Contains(path, "/consultations") && !strings.HasSuffix(path, "/report"):
		ref = "Consultation"
	default:
		return nil
	}
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": "#/components/schemas/" + ref},
			},
		},
	}
}

func responsesFor(method, path string) map[string]interface{} {
	errResp := map[string]interface{}{"$ref": "#/components/schemas/Error"}
	errors := map[string]interface{}{
		"default": map[string]interface{}{
			"description": "Error",
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{"schema": errResp},
			},
		},
	}

	switch {
	case method == http.MethodDelete:
		errors["204"] = map[string]string{"description": "Deleted"}
	case isPDF(method, path):
		errors["200"] = map[string]interface{}{
			"description": "PDF document",
			"content": map[string]interface{}{
				"application/pdf": map[string]interface{}{
					"schema": map[string]string{"type": "string", "format": "binary"},
				},
			},
		}
	case method == http.MethodPost:
		errors["201"] = map[string]string{"description": "Created"}
	default:
		errors["200"] = map[string]string{"description": "OK"}
	}
	return errors
}

func isPDF(method, path string) bool {
	switch {
	case strings.HasSuffix(path, "/reports/preview"):
		return true
	case method != http.MethodGet:
		return false
	case strings.HasSuffix(path, "/report"):
		return true
	default:
		return strings.HasSuffix(path, "/artifacts/{id}")
	}
}

func componentSchemas() map[string]interface{} {
	str := map[string]string{"type": "string"}
	dateTime := map[string]string{"type": "string", "format": "date-time"}
	integer := map[string]string{"type": "integer"}

	return map[string]interface{}{
		"Error": map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"message": str},
		},
		"Patient": map[string]interface{}{
			"type":     "object",
			"required": []string{"first_name", "last_name"},
			"properties": map[string]interface{}{
				"id": str, "mrn": str, "first_name": str, "last_name": str,
				"birth_date": map[string]string{"type": "string", "format": "date"},
				"gender":     str, "phone": str, "email": str, "address": str,
			},
		},
		"Consultation": map[string]interface{}{
			"type":     "object",
			"required": []string{"patient_id"},
			"properties": map[string]interface{}{
				"id": str, "patient_id": str, "date": dateTime,
				"type":             map[string]interface{}{"type": "string", "enum": []string{"initial", "follow_up", "urgent", "telehealth"}},
				"status":           map[string]interface{}{"type": "string", "enum": []string{"scheduled", "in_progress", "completed", "cancelled"}},
				"duration_minutes": integer,
				"chief_complaint":  str, "diagnosis": str, "treatment_plan": str, "notes": str,
				"clinician_id": str, "clinician_name": str,
			},
		},
		"TranscriptSegment": map[string]interface{}{
			"type":     "object",
			"required": []string{"text"},
			"properties": map[string]interface{}{
				"text":       str,
				"confidence": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
				"word_count": integer,
				"timestamp":  dateTime,
			},
		},
		"ReportInput": map[string]interface{}{
			"type":     "object",
			"required": []string{"patient", "consultation"},
			"properties": map[string]interface{}{
				"patient":      map[string]string{"$ref": "#/components/schemas/Patient"},
				"consultation": map[string]string{"$ref": "#/components/schemas/Consultation"},
				"segments": map[string]interface{}{
					"type":  "array",
					"items": map[string]string{"$ref": "#/components/schemas/TranscriptSegment"},
				},
			},
		},
		"ArtifactMetadata": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id": str, "consultation_id": str, "patient_id": str, "file_name": str,
				"content_type": str, "size": integer, "hash": str, "pages": integer,
				"generated_at": dateTime, "created_at": dateTime, "created_by": str,
			},
		},
	}
}

// RegisterRoutes registers the OpenAPI document endpoint.
func (g *Generator) RegisterRoutes(group *echo.Group) {
	group.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
}

package openapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Param is a query parameter accepted by a resource's search endpoint.
type Param struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// Resource describes one REST collection. Schemas are OpenAPI schema objects.
type Resource struct {
	Name         string
	Path         string
	Schema       map[string]interface{}
	CreateSchema map[string]interface{}
	UpdateSchema map[string]interface{}
	SearchParams []Param
}

// Generator builds an OpenAPI 3.0 document from a set of resources.
type Generator struct {
	title     string
	version   string
	baseURL   string
	resources []Resource
}

func NewGenerator(title, version, baseURL string, resources ...Resource) *Generator {
	return &Generator{title: title, version: version, baseURL: baseURL, resources: resources}
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]interface{})
	schemas := map[string]interface{}{
		"Error":           buildErrorSchema(),
		"ValidationError": buildValidationErrorSchema(),
	}

	for _, res := range g.resources {
		ref := "#/components/schemas/" + res.Name
		pageRef := "#/components/schemas/" + res.Name + "Page"
		schemas[res.Name] = res.Schema
		schemas[res.Name+"Page"] = buildPageSchema(ref)
		schemas[res.Name+"Create"] = res.CreateSchema
		schemas[res.Name+"Update"] = res.UpdateSchema

		paths[res.Path] = map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "List " + res.Name,
				"operationId": "list" + res.Name,
				"tags":        []string{res.Name},
				"parameters":  pageParameters(),
				"responses": map[string]interface{}{
					"200": g.buildResponseWithSchema("A page of results", pageRef),
					"400": g.buildResponseWithSchema("Invalid sort", "#/components/schemas/ValidationError"),
				},
			},
			"post": map[string]interface{}{
				"summary":     "Create " + res.Name,
				"operationId": "create" + res.Name,
				"tags":        []string{res.Name},
				"requestBody": g.buildRequestBody("#/components/schemas/" + res.Name + "Create"),
				"responses": map[string]interface{}{
					"201": g.buildResponseWithSchema("Created", ref),
					"400": g.buildResponseWithSchema("Validation failed", "#/components/schemas/ValidationError"),
					"409": g.buildResponseWithSchema("Conflict", "#/components/schemas/Error"),
				},
			},
		}

		paths[res.Path+"/search"] = map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Search " + res.Name,
				"operationId": "search" + res.Name,
				"tags":        []string{res.Name},
				"parameters":  append(searchParameters(res.SearchParams), pageParameters()...),
				"responses": map[string]interface{}{
					"200": g.buildResponseWithSchema("Matching results", pageRef),
					"400": g.buildResponseWithSchema("Invalid filter", "#/components/schemas/ValidationError"),
				},
			},
		}

		idParam := []map[string]interface{}{
			{"name": "id", "in": "path", "required": true, "schema": map[string]string{"type": "string", "format": "uuid"}},
		}
		notFound := g.buildResponseWithSchema("Not Found", "#/components/schemas/Error")
		paths[res.Path+"/{id}"] = map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Read " + res.Name,
				"operationId": "read" + res.Name,
				"tags":        []string{res.Name},
				"parameters":  idParam,
				"responses": map[string]interface{}{
					"200": g.buildResponseWithSchema("Success", ref),
					"404": notFound,
				},
			},
			"head": map[string]interface{}{
				"summary":     "Check " + res.Name + " existence",
				"operationId": "exists" + res.Name,
				"tags":        []string{res.Name},
				"parameters":  idParam,
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Exists"},
					"404": map[string]interface{}{"description": "Not Found"},
				},
			},
			"put": map[string]interface{}{
				"summary":     "Update " + res.Name,
				"operationId": "update" + res.Name,
				"tags":        []string{res.Name},
				"requestBody": g.buildRequestBody("#/components/schemas/" + res.Name + "Update"),
				"parameters":  idParam,
				"responses": map[string]interface{}{
					"200": g.buildResponseWithSchema("Updated", ref),
					"400": g.buildResponseWithSchema("Validation failed", "#/components/schemas/ValidationError"),
					"404": notFound,
					"409": g.buildResponseWithSchema("Conflict", "#/components/schemas/Error"),
				},
			},
			"delete": map[string]interface{}{
				"summary":     "Delete " + res.Name,
				"operationId": "delete" + res.Name,
				"tags":        []string{res.Name},
				"parameters":  idParam,
				"responses": map[string]interface{}{
					"204": map[string]interface{}{
						"description": "Deleted",
					},
					"404": notFound,
				},
			},
		}
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": schemas,
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
		},
		"security": []map[string][]string{{"bearerAuth": {}}},
	}
}

func pageParameters() []map[string]interface{} {
	return []map[string]interface{}{
		{"name": "page", "in": "query", "schema": map[string]interface{}{"type": "integer", "minimum": 0}, "description": "Zero-based page index"},
		{"name": "size", "in": "query", "schema": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 100}, "description": "Page size"},
		{"name": "sort", "in": "query", "schema": map[string]interface{}{"type": "string"}, "description": "field[,asc|desc]; repeatable"},
	}
}

func searchParameters(params []Param) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(params))
	for _, p := range params {
		schema := p.Schema
		if schema == nil {
			schema = map[string]interface{}{"type": "string"}
		}
		result = append(result, map[string]interface{}{
			"name":        p.Name,
			"in":          "query",
			"schema":      schema,
			"description": p.Description,
		})
	}
	return result
}

func (g *Generator) buildRequestBody(schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{
					"$ref": schemaRef,
				},
			},
		},
	}
}

func (g *Generator) buildResponseWithSchema(description, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{
					"$ref": schemaRef,
				},
			},
		},
	}
}

func buildPageSchema(itemRef string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"$ref": itemRef}},
			"page":          map[string]interface{}{"type": "integer"},
			"size":          map[string]interface{}{"type": "integer"},
			"totalElements": map[string]interface{}{"type": "integer"},
			"totalPages":    map[string]interface{}{"type": "integer"},
			"first":         map[string]interface{}{"type": "boolean"},
			"last":          map[string]interface{}{"type": "boolean"},
		},
	}
}

func buildErrorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"message": map[string]interface{}{"type": "string"}},
	}
}

func buildValidationErrorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message": map[string]interface{}{"type": "string"},
			"errors": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"field":   map[string]interface{}{"type": "string"},
						"message": map[string]interface{}{"type": "string"},
					},
				},
			},
		},
	}
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Patient API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// RegisterRoutes serves the document and a Swagger UI that loads it by
// relative URL, so both must share a group.
func (g *Generator) RegisterRoutes(group *echo.Group) {
	spec := g.GenerateSpec()
	group.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, spec)
	})
	group.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}

// Package docs holds the OpenAPI description served at /swagger/*. Regenerate
// with `swag init -g internal/api/router.go -o internal/api/docs` after
// changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/health/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable"}
                }
            }
        },
        "/v1/vehicles": {
            "get": {
                "produces": ["application/json"],
                "tags": ["vehicles"],
                "summary": "List all vehicles",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.vehicleListResponse"}}
                }
            }
        },
        "/v1/vehicles/nearby": {
            "get": {
                "produces": ["application/json"],
                "tags": ["vehicles"],
                "summary": "Find vehicles near a point",
                "parameters": [
                    {"type": "number", "description": "Latitude", "name": "lat", "in": "query", "required": true},
                    {"type": "number", "description": "Longitude", "name": "lng", "in": "query", "required": true},
                    {"type": "number", "description": "Search radius in km (default 1)", "name": "radius_km", "in": "query"},
                    {"type": "integer", "description": "Maximum results (default 20)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/v1/vehicles/updates": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["vehicles"],
                "summary": "Report a vehicle position",
                "parameters": [
                    {"description": "Position report", "name": "body", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/handler.reportRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/v1/vehicles/updates/batch": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["vehicles"],
                "summary": "Report a batch of vehicle positions",
                "parameters": [
                    {"type": "string", "description": "Deduplicates retried submissions for one hour", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Array of position reports", "name": "body", "in": "body", "required": true,
                     "schema": {"type": "array", "items": {"$ref": "#/definitions/handler.reportRequest"}}}
                ],
                "responses": {
                    "202": {"description": "Accepted"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/v1/vehicles/{vehicle_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["vehicles"],
                "summary": "Get one vehicle",
                "parameters": [
                    {"type": "string", "description": "Vehicle id", "name": "vehicle_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.VehicleState"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/v1/routes": {
            "get": {
                "produces": ["application/json"],
                "tags": ["routes"],
                "summary": "List routes",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/routes/refresh": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["routes"],
                "summary": "Reload routes from the route store",
                "responses": {"202": {"description": "Accepted"}}
            }
        },
        "/v1/routes/{route_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["routes"],
                "summary": "Get one route",
                "parameters": [
                    {"type": "string", "description": "Route id", "name": "route_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/v1/stream": {
            "get": {
                "tags": ["stream"],
                "summary": "Subscribe to live vehicle updates (websocket)",
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        }
    },
    "definitions": {
        "domain.Point": {
            "type": "object",
            "properties": {"lat": {"type": "number"}, "lng": {"type": "number"}}
        },
        "domain.VehicleState": {
            "type": "object",
            "properties": {
                "vehicle_id": {"type": "string"},
                "route_id": {"type": "string"},
                "position": {"$ref": "#/definitions/domain.Point"},
                "speed_kmh": {"type": "number"},
                "eta_seconds": {"type": "integer"},
                "eta_minutes": {"type": "integer"},
                "status": {"type": "string", "enum": ["running", "arrived"]},
                "updated_at": {"type": "string"},
                "occupancy": {"type": "string"},
                "capacity": {"type": "integer"}
            }
        },
        "handler.errorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "handler.reportRequest": {
            "type": "object",
            "required": ["vehicle_id", "lat", "lng"],
            "properties": {
                "vehicle_id": {"type": "string"},
                "route_id": {"type": "string"},
                "lat": {"type": "number"},
                "lng": {"type": "number"},
                "speed_kmh": {"type": "number"},
                "occupancy": {"type": "string"},
                "capacity": {"type": "integer", "minimum": 0},
                "status": {"type": "string"}
            }
        },
        "handler.vehicleListResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "vehicles": {"type": "array", "items": {"$ref": "#/definitions/domain.VehicleState"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Transit Tracker API",
	Description:      "Vehicle position ingest, ETA estimation and live distribution.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// Package docs holds the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "Coinpilot Maintainers",
            "url": "https://github.com/raysh454/coinpilot"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.HealthResponse"}}
                }
            }
        },
        "/init": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Scrape a page through the configured backend",
                "parameters": [
                    {"description": "page to scrape", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.InitRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/scrape.Result"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/screenshot": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Capture a page screenshot",
                "parameters": [
                    {"description": "page to capture", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.ScreenshotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.ScreenshotResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/post": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Generate text with the language model",
                "parameters": [
                    {"description": "prompt", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.PostRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.PostResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/runs": {
            "get": {
                "produces": ["application/json"],
                "summary": "List recent launch runs",
                "parameters": [
                    {"type": "integer", "description": "maximum number of runs", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/history.Run"}}}
                }
            }
        },
        "/jobs/launch": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Start a launch job",
                "parameters": [
                    {"description": "coin to launch; defaults to the configured coin", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/launch.FormPayload"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/app.Job"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "server.HealthResponse": {
            "type": "object",
            "properties": {"status": {"type": "string", "example": "ok"}}
        },
        "server.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "not found"}}
        },
        "server.InitRequest": {
            "type": "object",
            "properties": {
                "url": {"type": "string", "example": "https://example.com"},
                "waitFor": {"type": "integer", "example": 1000}
            }
        },
        "server.ScreenshotRequest": {
            "type": "object",
            "properties": {
                "url": {"type": "string", "example": "https://example.com"},
                "fullPage": {"type": "boolean", "example": true}
            }
        },
        "server.ScreenshotResponse": {
            "type": "object",
            "properties": {"screenshot_path": {"type": "string", "example": "screenshot.png"}}
        },
        "server.PostRequest": {
            "type": "object",
            "properties": {"text": {"type": "string", "example": "Write a short post about MoonCat"}}
        },
        "server.PostResponse": {
            "type": "object",
            "properties": {"response": {"type": "string", "example": "MoonCat is purring to the moon"}}
        },
        "scrape.Result": {
            "type": "object",
            "properties": {
                "url": {"type": "string"},
                "data": {"type": "object"},
                "summary": {"type": "object"}
            }
        },
        "history.Run": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string"},
                "status": {"type": "string"},
                "session_id": {"type": "string"},
                "detail": {"type": "string"},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"}
            }
        },
        "launch.FormPayload": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "ticker": {"type": "string"},
                "description": {"type": "string"},
                "image_path": {"type": "string"},
                "website": {"type": "string"},
                "twitter": {"type": "string"},
                "telegram": {"type": "string"}
            }
        },
        "app.Job": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string"},
                "status": {"type": "string"},
                "error": {"type": "string"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Coinpilot API",
	Description:      "Scraping, screenshot, language model and launch job endpoints.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// apiDoc serves the OpenAPI document for the swagger UI.
type apiDoc struct{}

func (apiDoc) ReadDoc() string { return openAPIDoc }

func init() {
	swag.Register(swag.Name, apiDoc{})
}

// MountSwagger mounts the swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

const openAPIDoc = `{
  "swagger": "2.0",
  "info": {"title": "ovchat API", "version": "1.0", "description": "Local OpenVINO chat: model acquisition, session settings and token streaming."},
  "basePath": "/",
  "schemes": ["http"],
  "paths": {
    "/models": {"get": {"summary": "Model catalog and converted models", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ModelsResponse"}}}}},
    "/devices": {"get": {"summary": "Available inference devices", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/DevicesResponse"}}}}},
    "/session": {
      "get": {"summary": "Current session settings", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Session"}}}},
      "put": {"summary": "Update session settings", "consumes": ["application/json"], "produces": ["application/json"],
        "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/SessionUpdate"}}],
        "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Session"}}, "400": {"description": "Rejected", "schema": {"$ref": "#/definitions/ErrorResponse"}}}}
    },
    "/load": {"post": {"summary": "Acquire and open the selected model", "consumes": ["application/json"], "produces": ["application/json"],
      "parameters": [{"in": "body", "name": "body", "required": false, "schema": {"$ref": "#/definitions/LoadRequest"}}],
      "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/LoadResponse"}}, "429": {"description": "Load in progress"}, "503": {"description": "Runtime unavailable"}}}},
    "/chat": {"post": {"summary": "Stream a reply as NDJSON", "consumes": ["application/json"], "produces": ["application/x-ndjson"],
      "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/ChatRequest"}}],
      "responses": {"200": {"description": "Token stream", "schema": {"$ref": "#/definitions/ChatChunk"}}, "409": {"description": "No model loaded"}, "429": {"description": "Generation in progress"}}}},
    "/status": {"get": {"summary": "Manager status", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
    "/healthz": {"get": {"summary": "Liveness", "responses": {"200": {"description": "ok"}}}},
    "/readyz": {"get": {"summary": "Readiness", "responses": {"200": {"description": "ready"}, "503": {"description": "no model loaded"}}}}
  },
  "definitions": {
    "Model": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "path": {"type": "string"}, "variant": {"type": "string"}, "device": {"type": "string"}, "size_mb": {"type": "number"}}},
    "ModelsResponse": {"type": "object", "properties": {"catalog": {"type": "array", "items": {"type": "string"}}, "local": {"type": "array", "items": {"$ref": "#/definitions/Model"}}}},
    "DevicesResponse": {"type": "object", "properties": {"available": {"type": "array", "items": {"type": "string"}}, "preference": {"type": "array", "items": {"type": "string"}}, "selected": {"type": "string"}}},
    "Session": {"type": "object", "properties": {"org": {"type": "string"}, "model": {"type": "string"}, "variant": {"type": "string"}, "device": {"type": "string"}, "temperature": {"type": "number"}, "max_new_tokens": {"type": "integer"}}},
    "SessionUpdate": {"type": "object", "properties": {"model": {"type": "string"}, "variant": {"type": "string"}, "device": {"type": "string"}, "temperature": {"type": "number"}, "max_new_tokens": {"type": "integer"}}},
    "LoadRequest": {"type": "object", "properties": {"allow_remote": {"type": "boolean"}}},
    "LoadResponse": {"type": "object", "properties": {"dir": {"type": "string"}, "source": {"type": "string"}, "command": {"type": "string"}, "device": {"type": "string"}, "size_mb": {"type": "number"}}},
    "ChatRequest": {"type": "object", "required": ["prompt"], "properties": {"prompt": {"type": "string"}, "max_new_tokens": {"type": "integer"}, "stop": {"type": "array", "items": {"type": "string"}}}},
    "ChatChunk": {"type": "object", "properties": {"token": {"type": "string"}, "done": {"type": "boolean"}, "finish_reason": {"type": "string"}, "completion_tokens": {"type": "integer"}, "error": {"type": "string"}}},
    "ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "code": {"type": "integer"}}}
  }
}`

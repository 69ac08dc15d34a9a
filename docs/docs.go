// Package docs holds the swagger document served at /swagger/.
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
        "/v1/transcriptions": {
            "post": {
                "description": "Transcribes an uploaded PCM WAV file through the shared engine gate.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json", "text/plain"],
                "tags": ["transcription"],
                "summary": "Transcribe a file",
                "parameters": [
                    {"type": "file", "description": "PCM WAV audio", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "Language code", "name": "language", "in": "formData"},
                    {"type": "string", "description": "json, text or verbose_json", "name": "response_format", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "Transcript", "schema": {"$ref": "#/definitions/transcription.TranscriptionVerboseResponse"}},
                    "400": {"description": "Missing or undecodable audio", "schema": {"$ref": "#/definitions/shared.APIError"}},
                    "503": {"description": "Engine busy", "schema": {"$ref": "#/definitions/shared.APIError"}}
                }
            }
        },
        "/v1/transcripts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "List recent transcripts",
                "parameters": [
                    {"type": "integer", "description": "Maximum records (1-500)", "name": "limit", "in": "query"},
                    {"type": "string", "description": "Filter by session", "name": "session_id", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Transcripts", "schema": {"type": "array", "items": {"$ref": "#/definitions/history.Record"}}},
                    "503": {"description": "Journal disabled", "schema": {"$ref": "#/definitions/shared.APIError"}}
                }
            }
        },
        "/v1/transcripts/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "Get a transcript",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Transcript", "schema": {"$ref": "#/definitions/history.Record"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/shared.APIError"}}
                }
            }
        },
        "/v1/sessions/{id}/last": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "Last transcript of a session",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Transcript", "schema": {"$ref": "#/definitions/history.Record"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/shared.APIError"}}
                }
            }
        },
        "/v1/metrics/hourly": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "Hourly transcription counters",
                "parameters": [{"type": "integer", "description": "Hours to look back (1-168)", "name": "hours", "in": "query"}],
                "responses": {
                    "200": {"description": "Buckets", "schema": {"type": "array", "items": {"$ref": "#/definitions/history.Metrics"}}}
                }
            }
        },
        "/health": {
            "get": {"produces": ["application/json"], "tags": ["health"], "summary": "Liveness", "responses": {"200": {"description": "OK"}}}
        },
        "/health/ready": {
            "get": {"produces": ["application/json"], "tags": ["health"], "summary": "Readiness", "responses": {"200": {"description": "Ready"}, "503": {"description": "Unhealthy"}}}
        },
        "/health/sessions": {
            "get": {"produces": ["application/json"], "tags": ["health"], "summary": "Active wyoming sessions", "responses": {"200": {"description": "Sessions"}}}
        }
    },
    "definitions": {
        "shared.APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "details": {"type": "object"}
            }
        },
        "transcription.TranscriptionVerboseResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "language": {"type": "string"},
                "duration": {"type": "number"},
                "latency_ms": {"type": "integer"},
                "text": {"type": "string"}
            }
        },
        "history.Record": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "session_id": {"type": "string"},
                "transport": {"type": "string"},
                "language": {"type": "string"},
                "text": {"type": "string"},
                "format": {"type": "string"},
                "audio_ms": {"type": "integer"},
                "latency_ms": {"type": "integer"},
                "status": {"type": "string"},
                "error": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "history.Metrics": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "hour": {"type": "integer"},
                "transcriptions": {"type": "integer"},
                "failures": {"type": "integer"},
                "audio_ms": {"type": "integer"},
                "avg_latency_ms": {"type": "integer"}
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Parakeet Wyoming API",
	Description:      "Management API for the Parakeet wyoming transcription service",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Room Assignment API",
        "description": "Allocates rooms to weekly class meetings per academic period and reconciles imported course data.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Assignments", "description": "Room allocation passes and their results"},
        {"name": "Imports", "description": "Batch import with duplicate reconciliation"},
        {"name": "Periods", "description": "Configured academic periods"}
    ],
    "paths": {
        "/periods": {
            "get": {
                "tags": ["Periods"],
                "summary": "List academic periods",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/run": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Run room allocation for the caller's scope",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RunAssignmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "SCOPE_EMPTY or NO_ASSIGNMENTS", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "PERSISTENCE_PARTIAL", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/undo": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Remove the caller's assignments",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UndoAssignmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments": {
            "get": {
                "tags": ["Assignments"],
                "summary": "List the caller's assignments",
                "parameters": [
                    {"name": "periodId", "in": "query", "type": "string", "required": true},
                    {"name": "programId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/export": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Download the caller's assignments",
                "produces": ["text/csv", "application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "text/calendar"],
                "parameters": [
                    {"name": "periodId", "in": "query", "type": "string", "required": true},
                    {"name": "programId", "in": "query", "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "xlsx", "ics"]}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        },
        "/imports/preview": {
            "post": {
                "tags": ["Imports"],
                "summary": "Preview an import batch",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ImportPreviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/imports/confirm": {
            "post": {
                "tags": ["Imports"],
                "summary": "Confirm an import batch",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ImportConfirmRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "RECONCILIATION_CONFLICT", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RunAssignmentRequest": {
            "type": "object",
            "properties": {
                "periodId": {"type": "string"},
                "programId": {"type": "string"},
                "roomIds": {"type": "array", "items": {"type": "string"}},
                "policy": {"type": "string", "enum": ["best_fit", "first_descending"]}
            },
            "required": ["periodId"]
        },
        "UndoAssignmentRequest": {
            "type": "object",
            "properties": {
                "periodId": {"type": "string"},
                "programId": {"type": "string"}
            },
            "required": ["periodId"]
        },
        "ImportSlot": {
            "type": "object",
            "properties": {
                "dayOfWeek": {"type": "string"},
                "startTime": {"type": "string"},
                "endTime": {"type": "string"}
            }
        },
        "ImportItem": {
            "type": "object",
            "properties": {
                "subjectName": {"type": "string"},
                "instructorName": {"type": "string"},
                "groupLabel": {"type": "string"},
                "shift": {"type": "string", "enum": ["MORNING", "AFTERNOON"]},
                "students": {"type": "integer"},
                "programId": {"type": "string"},
                "slots": {"type": "array", "items": {"$ref": "#/definitions/ImportSlot"}}
            }
        },
        "ImportPreviewRequest": {
            "type": "object",
            "properties": {
                "periodId": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/ImportItem"}}
            },
            "required": ["periodId", "items"]
        },
        "DuplicateDecision": {
            "type": "object",
            "properties": {
                "index": {"type": "integer"},
                "kind": {"type": "string", "enum": ["instructor", "subject"]},
                "action": {"type": "string", "enum": ["replace", "skip", "keep_both"]}
            }
        },
        "ImportConfirmRequest": {
            "type": "object",
            "properties": {
                "periodId": {"type": "string"},
                "batchId": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/ImportItem"}},
                "decisions": {"type": "array", "items": {"$ref": "#/definitions/DuplicateDecision"}}
            },
            "required": ["periodId"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}

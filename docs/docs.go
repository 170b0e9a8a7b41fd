// Package docs registers the dashboard API's OpenAPI document with swag.
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
                "tags": ["system"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.HealthResponse"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Runtime metrics",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/rankings": {
            "get": {
                "description": "Rows of the latest ranking, optionally filtered by developer names and an inclusive score range.",
                "produces": ["application/json"],
                "tags": ["rankings"],
                "summary": "Latest ranking",
                "parameters": [
                    {"type": "string", "description": "Comma separated developer names", "name": "names", "in": "query"},
                    {"type": "number", "description": "Minimum TotalScore (inclusive)", "name": "min_score", "in": "query"},
                    {"type": "number", "description": "Maximum TotalScore (inclusive)", "name": "max_score", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/leaderboard.Snapshot"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/rankings/top": {
            "get": {
                "produces": ["application/json"],
                "tags": ["rankings"],
                "summary": "Top developers",
                "parameters": [
                    {"type": "integer", "description": "How many developers to return", "name": "n", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.TopResponse"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/rankings/charts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["rankings"],
                "summary": "Dashboard chart series",
                "parameters": [
                    {"type": "integer", "description": "Size of the top developers series", "name": "n", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/leaderboard.Charts"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/rankings/refresh": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Runs the ranking pipeline over the current issue exports and republishes the dashboard.",
                "produces": ["application/json"],
                "tags": ["rankings"],
                "summary": "Re-rank the current exports",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/pipeline.Result"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": true}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": true}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": true}},
                    "429": {"description": "Too Many Requests", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/developers/{name}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["developers"],
                "summary": "One developer",
                "parameters": [
                    {"type": "string", "description": "Developer display name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/leaderboard.DeveloperRow"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["rankings"],
                "summary": "Recent ranking runs",
                "parameters": [
                    {"type": "integer", "description": "Maximum number of runs", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/database.RankingRun"}}}
                }
            }
        }
    },
    "definitions": {
        "database.RankingRun": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "trigger": {"type": "string"},
                "issue_count": {"type": "integer"},
                "developer_count": {"type": "integer"},
                "columns": {"type": "array", "items": {"type": "string"}},
                "created_at": {"type": "string"}
            }
        },
        "leaderboard.DeveloperRow": {
            "type": "object",
            "properties": {
                "rank": {"type": "integer"},
                "name": {"type": "string"},
                "email": {"type": "string"},
                "total_score": {"type": "number"},
                "values": {"type": "object", "additionalProperties": true}
            }
        },
        "leaderboard.Snapshot": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "last_updated": {"type": "string"},
                "columns": {"type": "array", "items": {"type": "string"}},
                "rows": {"type": "array", "items": {"$ref": "#/definitions/leaderboard.DeveloperRow"}}
            }
        },
        "leaderboard.ScorePoint": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "score": {"type": "number"}
            }
        },
        "leaderboard.TimePoint": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "bug_time": {"type": "number"},
                "subtask_time": {"type": "number"},
                "score": {"type": "number"}
            }
        },
        "leaderboard.Criticality": {
            "type": "object",
            "properties": {
                "normal": {"type": "number"},
                "critical": {"type": "number"},
                "blocker": {"type": "number"}
            }
        },
        "leaderboard.Charts": {
            "type": "object",
            "properties": {
                "top": {"type": "array", "items": {"$ref": "#/definitions/leaderboard.ScorePoint"}},
                "bug_vs_subtask": {"type": "array", "items": {"$ref": "#/definitions/leaderboard.TimePoint"}},
                "criticality": {"$ref": "#/definitions/leaderboard.Criticality"}
            }
        },
        "pipeline.Result": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "trigger": {"type": "string"},
                "issues": {"type": "integer"},
                "developers": {"type": "integer"},
                "columns": {"type": "array", "items": {"type": "string"}},
                "top_score": {"type": "number"},
                "scoring_fallbacks": {"type": "integer"},
                "ranking_file": {"type": "string"},
                "duration": {"type": "integer"}
            }
        },
        "server.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "timestamp": {"type": "string"},
                "version": {"type": "string"},
                "last_ranking_at": {"type": "string"},
                "next_update_at": {"type": "string"},
                "skipped_ticks": {"type": "integer"},
                "checks": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "server.TopResponse": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "last_updated": {"type": "string"},
                "rows": {"type": "array", "items": {"$ref": "#/definitions/leaderboard.DeveloperRow"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "JIRA Developer Ranking API",
	Description:      "Dashboard data for the JIRA developer productivity ranking.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

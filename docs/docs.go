// Package docs holds the Swagger document served by the API.
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
                "description": "Returns the bridge status and how many paired speakers are reachable",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "health"
                ],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "Service is healthy",
                        "schema": {
                            "$ref": "#/definitions/types.HealthResponse"
                        }
                    },
                    "503": {
                        "description": "Service is degraded",
                        "schema": {
                            "$ref": "#/definitions/types.HealthResponse"
                        }
                    }
                }
            }
        },
        "/devices": {
            "get": {
                "description": "Returns all paired speakers with their availability and last known state",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "devices"
                ],
                "summary": "List paired speakers",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/types.ListDevicesResponse"
                        }
                    },
                    "500": {
                        "description": "Controller error",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    }
                }
            },
            "post": {
                "description": "Pairs a discovered speaker and starts mirroring it. Pairing an already paired speaker returns it unchanged.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "devices"
                ],
                "summary": "Pair a speaker",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Candidate id and optional name",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/types.PairDeviceRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/types.DeviceResponse"
                        }
                    },
                    "400": {
                        "description": "Invalid request",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Speaker not discovered",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Controller not running",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/devices/{id}": {
            "get": {
                "description": "Returns a paired speaker by id",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "devices"
                ],
                "summary": "Get speaker details",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Speaker id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/types.DeviceResponse"
                        }
                    },
                    "404": {
                        "description": "Device not found",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Controller error",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    }
                }
            },
            "patch": {
                "description": "Changes the name of a paired speaker",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "devices"
                ],
                "summary": "Rename a speaker",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Speaker id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "New name",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/types.RenameDeviceRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/types.DeviceResponse"
                        }
                    },
                    "400": {
                        "description": "Invalid request",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Device not found",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Controller error",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    }
                }
            },
            "delete": {
                "description": "Stops the speaker session and forgets the speaker. It stays discoverable for pairing.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "devices"
                ],
                "summary": "Unpair a speaker",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Speaker id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Device removed successfully"
                    },
                    "404": {
                        "description": "Device not found",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Controller error",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/devices/{id}/state": {
            "get": {
                "description": "Returns the last projected capability values of a speaker",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "devices"
                ],
                "summary": "Get speaker state",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Speaker id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/types.StateResponse"
                        }
                    },
                    "404": {
                        "description": "Device not found",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Controller error",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    }
                }
            },
            "post": {
                "description": "Applies capability writes validated against the speaker's state schema",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "devices"
                ],
                "summary": "Set speaker state",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Speaker id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Capabilities to set",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/types.StateResponse"
                        }
                    },
                    "400": {
                        "description": "Invalid request",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Device not found",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Speaker unavailable",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "504": {
                        "description": "Request timed out",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/devices/{id}/actions/{action}": {
            "post": {
                "description": "Triggers a one-shot action such as play_aux_in or volume_up",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "devices"
                ],
                "summary": "Run a speaker action",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Speaker id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Action name",
                        "name": "action",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/types.ActionResponse"
                        }
                    },
                    "400": {
                        "description": "Unknown action",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Device not found",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Speaker unavailable",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/devices/{id}/artwork": {
            "get": {
                "description": "Redirects to the artwork URL, or serves the image bytes when the art was fetched",
                "produces": [
                    "image/jpeg"
                ],
                "tags": [
                    "devices"
                ],
                "summary": "Get album art",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Speaker id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Image bytes"
                    },
                    "302": {
                        "description": "Redirect to artwork URL"
                    },
                    "404": {
                        "description": "No artwork",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/pairing/candidates": {
            "get": {
                "description": "Returns every discovered speaker. Never triggers a search; use POST /discovery/start for that.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "pairing"
                ],
                "summary": "List pairing candidates",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/types.PairingCandidatesResponse"
                        }
                    },
                    "500": {
                        "description": "Controller error",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/discovery/start": {
            "post": {
                "description": "Repeats SSDP searches for the given window so new speakers show up as pairing candidates",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "discovery"
                ],
                "summary": "Start active discovery",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Window length (default 60 seconds, max 600)",
                        "name": "request",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/types.StartDiscoveryRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/types.StartDiscoveryResponse"
                        }
                    },
                    "400": {
                        "description": "Invalid duration",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Controller not running",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/discovery/stop": {
            "post": {
                "description": "Closes the discovery window. Passive SSDP listening continues.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "discovery"
                ],
                "summary": "Stop active discovery",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/types.StopDiscoveryResponse"
                        }
                    },
                    "503": {
                        "description": "Controller not running",
                        "schema": {
                            "$ref": "#/definitions/types.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/events": {
            "get": {
                "description": "Server-Sent Events stream of discovery, pairing, availability and state changes",
                "produces": [
                    "text/event-stream"
                ],
                "tags": [
                    "events"
                ],
                "summary": "Subscribe to bridge events",
                "responses": {
                    "200": {
                        "description": "SSE event stream",
                        "schema": {
                            "type": "string"
                        }
                    }
                }
            }
        },
        "/events/ws": {
            "get": {
                "description": "Same events as the SSE stream, framed as JSON websocket messages with periodic pings",
                "tags": [
                    "events"
                ],
                "summary": "Subscribe to bridge events over a websocket",
                "responses": {
                    "101": {
                        "description": "Switching protocols",
                        "schema": {
                            "type": "string"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "device.PairingCandidate": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                },
                "model": {
                    "type": "string"
                },
                "address": {
                    "type": "string"
                },
                "paired": {
                    "type": "boolean"
                }
            }
        },
        "types.ActionResponse": {
            "type": "object",
            "properties": {
                "device": {
                    "type": "string"
                },
                "action": {
                    "type": "string"
                },
                "status": {
                    "type": "string"
                }
            }
        },
        "types.DeviceResponse": {
            "type": "object",
            "properties": {
                "device": {
                    "$ref": "#/definitions/types.DeviceWithState"
                }
            }
        },
        "types.DeviceWithState": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                },
                "type": {
                    "type": "string"
                },
                "manufacturer": {
                    "type": "string"
                },
                "model": {
                    "type": "string"
                },
                "model_number": {
                    "type": "string"
                },
                "address": {
                    "type": "string"
                },
                "available": {
                    "type": "boolean"
                },
                "reason": {
                    "type": "string"
                },
                "actions": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "state_schema": {
                    "type": "object"
                },
                "state": {
                    "type": "object",
                    "additionalProperties": true
                }
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                }
            }
        },
        "types.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string"
                },
                "controller": {
                    "type": "string"
                },
                "devices": {
                    "type": "integer"
                },
                "available": {
                    "type": "integer"
                },
                "timestamp": {
                    "type": "string"
                }
            }
        },
        "types.ListDevicesResponse": {
            "type": "object",
            "properties": {
                "devices": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/types.DeviceWithState"
                    }
                },
                "count": {
                    "type": "integer"
                }
            }
        },
        "types.PairDeviceRequest": {
            "type": "object",
            "required": [
                "id"
            ],
            "properties": {
                "id": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                }
            }
        },
        "types.PairingCandidatesResponse": {
            "type": "object",
            "properties": {
                "candidates": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/device.PairingCandidate"
                    }
                },
                "count": {
                    "type": "integer"
                }
            }
        },
        "types.RenameDeviceRequest": {
            "type": "object",
            "required": [
                "name"
            ],
            "properties": {
                "name": {
                    "type": "string"
                }
            }
        },
        "types.StartDiscoveryRequest": {
            "type": "object",
            "properties": {
                "duration_seconds": {
                    "type": "integer"
                }
            }
        },
        "types.StartDiscoveryResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string"
                },
                "expires_at": {
                    "type": "string"
                },
                "duration_seconds": {
                    "type": "integer"
                }
            }
        },
        "types.StateResponse": {
            "type": "object",
            "properties": {
                "device": {
                    "type": "string"
                },
                "state": {
                    "type": "object",
                    "additionalProperties": true
                },
                "timestamp": {
                    "type": "string"
                }
            }
        },
        "types.StopDiscoveryResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string"
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "HEOS Bridge API",
	Description:      "REST API for pairing and controlling HEOS speakers",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "AidlY Insights API",
        "description": "Metrics, reports and notifications for the AidlY helpdesk",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "tags": [
        {
            "name": "Notifications",
            "description": "Notification inbox and dispatch"
        },
        {
            "name": "Reports",
            "description": "Report execution, export and schedules"
        },
        {
            "name": "Dashboard",
            "description": "Agent dashboard"
        },
        {
            "name": "Metrics",
            "description": "Aggregated helpdesk metrics"
        },
        {
            "name": "Realtime",
            "description": "Websocket relay"
        },
        {
            "name": "System",
            "description": "Health and instrumentation"
        }
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": [
                    "System"
                ],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": [
                    "System"
                ],
                "summary": "Prometheus metrics",
                "produces": [
                    "text/plain"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/api/v1/notifications": {
            "get": {
                "tags": [
                    "Notifications"
                ],
                "summary": "List notifications of a recipient",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "notifiable_id",
                        "in": "query",
                        "type": "string",
                        "description": ""
                    },
                    {
                        "name": "notifiable_type",
                        "in": "query",
                        "type": "string",
                        "description": "user or client"
                    },
                    {
                        "name": "unread",
                        "in": "query",
                        "type": "boolean",
                        "description": ""
                    },
                    {
                        "name": "type",
                        "in": "query",
                        "type": "string",
                        "description": ""
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer",
                        "description": ""
                    },
                    {
                        "name": "per_page",
                        "in": "query",
                        "type": "integer",
                        "description": ""
                    }
                ]
            },
            "post": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Dispatch an event on one channel",
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/NotificationEvent"
                        }
                    }
                ]
            }
        },
        "/api/v1/notifications/unread-count": {
            "get": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Count unread in-app notifications",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "notifiable_id",
                        "in": "query",
                        "type": "string",
                        "description": ""
                    },
                    {
                        "name": "notifiable_type",
                        "in": "query",
                        "type": "string",
                        "description": "user or client"
                    }
                ]
            }
        },
        "/api/v1/notifications/fan-out": {
            "post": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Dispatch an event on every enabled channel",
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/NotificationEvent"
                        }
                    }
                ]
            }
        },
        "/api/v1/notifications/mark-read": {
            "post": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Mark several notifications read",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "notifiable_id",
                        "in": "query",
                        "type": "string",
                        "description": ""
                    },
                    {
                        "name": "notifiable_type",
                        "in": "query",
                        "type": "string",
                        "description": "user or client"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/MarkReadRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/notifications/mark-all-read": {
            "post": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Mark every notification of a recipient read",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "notifiable_id",
                        "in": "query",
                        "type": "string",
                        "description": ""
                    },
                    {
                        "name": "notifiable_type",
                        "in": "query",
                        "type": "string",
                        "description": "user or client"
                    }
                ]
            }
        },
        "/api/v1/notifications/{id}/read": {
            "post": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Mark a notification read",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/api/v1/notifications/{id}/unread": {
            "post": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Mark a notification unread",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/api/v1/notifications/{id}": {
            "delete": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Delete a notification",
                "responses": {
                    "204": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/api/v1/notification-preferences": {
            "get": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Notification preferences of a recipient",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "notifiable_id",
                        "in": "query",
                        "type": "string",
                        "description": ""
                    },
                    {
                        "name": "notifiable_type",
                        "in": "query",
                        "type": "string",
                        "description": "user or client"
                    }
                ]
            },
            "put": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Replace notification preferences",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "notifiable_id",
                        "in": "query",
                        "type": "string",
                        "description": ""
                    },
                    {
                        "name": "notifiable_type",
                        "in": "query",
                        "type": "string",
                        "description": "user or client"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/Preferences"
                        }
                    }
                ]
            }
        },
        "/api/v1/reports/{id}/execute": {
            "post": {
                "tags": [
                    "Reports"
                ],
                "summary": "Run a report synchronously",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/ExecuteReportRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/reports/{id}/executions": {
            "get": {
                "tags": [
                    "Reports"
                ],
                "summary": "Recent executions of a report",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "description": ""
                    }
                ]
            }
        },
        "/api/v1/reports/executions/{id}": {
            "get": {
                "tags": [
                    "Reports"
                ],
                "summary": "Execution status",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/api/v1/reports/{id}/schedule": {
            "get": {
                "tags": [
                    "Reports"
                ],
                "summary": "Schedule of a report",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            },
            "put": {
                "tags": [
                    "Reports"
                ],
                "summary": "Create or replace the schedule of a report",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/ScheduleReportRequest"
                        }
                    }
                ]
            },
            "delete": {
                "tags": [
                    "Reports"
                ],
                "summary": "Remove the schedule of a report",
                "responses": {
                    "204": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/api/v1/exports/reports": {
            "post": {
                "tags": [
                    "Reports"
                ],
                "summary": "Render a report and stream the file",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/ExportReportRequest"
                        }
                    }
                ],
                "produces": [
                    "application/octet-stream"
                ]
            }
        },
        "/api/v1/export/{token}": {
            "get": {
                "tags": [
                    "Reports"
                ],
                "summary": "Download an execution file via signed token",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "produces": [
                    "application/octet-stream"
                ]
            }
        },
        "/api/v1/dashboard/agent-queue": {
            "get": {
                "tags": [
                    "Dashboard"
                ],
                "summary": "Open tickets assigned to an agent",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "agent_id",
                        "in": "query",
                        "type": "string",
                        "description": ""
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer",
                        "description": ""
                    },
                    {
                        "name": "per_page",
                        "in": "query",
                        "type": "integer",
                        "description": ""
                    }
                ]
            }
        },
        "/api/v1/dashboard/agent-stats": {
            "get": {
                "tags": [
                    "Dashboard"
                ],
                "summary": "Rolling metrics and live counters for an agent",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "agent_id",
                        "in": "query",
                        "type": "string",
                        "description": ""
                    }
                ]
            }
        },
        "/api/v1/metrics/tickets": {
            "get": {
                "tags": [
                    "Metrics"
                ],
                "summary": "Daily ticket metrics",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string",
                        "description": "YYYY-MM-DD"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string",
                        "description": "YYYY-MM-DD"
                    }
                ]
            }
        },
        "/api/v1/metrics/sla": {
            "get": {
                "tags": [
                    "Metrics"
                ],
                "summary": "Daily SLA compliance",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string",
                        "description": "YYYY-MM-DD"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string",
                        "description": "YYYY-MM-DD"
                    }
                ]
            }
        },
        "/api/v1/metrics/hourly": {
            "get": {
                "tags": [
                    "Metrics"
                ],
                "summary": "Hourly ticket flow of one day",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "date",
                        "in": "query",
                        "type": "string",
                        "description": "YYYY-MM-DD"
                    }
                ]
            }
        },
        "/api/v1/metrics/clients": {
            "get": {
                "tags": [
                    "Metrics"
                ],
                "summary": "Busiest clients of the rolling window",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "period_end",
                        "in": "query",
                        "type": "string",
                        "description": "YYYY-MM-DD"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "description": ""
                    }
                ]
            }
        },
        "/api/v1/metrics/system": {
            "get": {
                "tags": [
                    "Metrics"
                ],
                "summary": "Process instrumentation snapshot",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/metrics/aggregate": {
            "post": {
                "tags": [
                    "Metrics"
                ],
                "summary": "Run or queue an aggregation",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/AggregateRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/realtime/auth": {
            "post": {
                "tags": [
                    "Realtime"
                ],
                "summary": "Sign a private or presence channel subscription",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/RealtimeAuthRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/realtime/ws": {
            "get": {
                "tags": [
                    "Realtime"
                ],
                "summary": "Upgrade to the realtime websocket",
                "responses": {
                    "101": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "NotificationEvent": {
            "type": "object",
            "properties": {
                "type": {
                    "type": "string"
                },
                "recipient": {
                    "type": "object",
                    "properties": {
                        "id": {
                            "type": "string"
                        },
                        "type": {
                            "type": "string"
                        }
                    }
                },
                "channel": {
                    "type": "string"
                },
                "priority": {
                    "type": "string"
                },
                "title": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "data": {
                    "type": "object"
                },
                "action_url": {
                    "type": "string"
                },
                "action_text": {
                    "type": "string"
                },
                "department_id": {
                    "type": "string"
                },
                "broadcast": {
                    "type": "boolean"
                }
            },
            "required": [
                "type",
                "recipient",
                "title",
                "message"
            ]
        },
        "MarkReadRequest": {
            "type": "object",
            "properties": {
                "ids": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            },
            "required": [
                "ids"
            ]
        },
        "Preferences": {
            "type": "object",
            "properties": {
                "email_enabled": {
                    "type": "boolean"
                },
                "in_app_enabled": {
                    "type": "boolean"
                },
                "push_enabled": {
                    "type": "boolean"
                },
                "sms_enabled": {
                    "type": "boolean"
                },
                "event_settings": {
                    "type": "object"
                },
                "digest_enabled": {
                    "type": "boolean"
                },
                "digest_frequency": {
                    "type": "string"
                },
                "email_frequency": {
                    "type": "string"
                }
            }
        },
        "ExecuteReportRequest": {
            "type": "object",
            "properties": {
                "parameters": {
                    "type": "object"
                },
                "format": {
                    "type": "string"
                }
            }
        },
        "ExportReportRequest": {
            "type": "object",
            "properties": {
                "report_id": {
                    "type": "string"
                },
                "parameters": {
                    "type": "object"
                },
                "format": {
                    "type": "string"
                }
            },
            "required": [
                "report_id"
            ]
        },
        "ScheduleReportRequest": {
            "type": "object",
            "properties": {
                "cron_expression": {
                    "type": "string"
                },
                "timezone": {
                    "type": "string"
                },
                "recipients": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "format": {
                    "type": "string"
                }
            },
            "required": [
                "cron_expression",
                "recipients"
            ]
        },
        "AggregateRequest": {
            "type": "object",
            "properties": {
                "date": {
                    "type": "string"
                },
                "type": {
                    "type": "string"
                },
                "async": {
                    "type": "boolean"
                }
            }
        },
        "RealtimeAuthRequest": {
            "type": "object",
            "properties": {
                "socket_id": {
                    "type": "string"
                },
                "channel_name": {
                    "type": "string"
                }
            },
            "required": [
                "socket_id",
                "channel_name"
            ]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "success": {
                    "type": "boolean"
                },
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "meta": {
                    "type": "object"
                }
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

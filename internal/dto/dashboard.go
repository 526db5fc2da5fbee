package dto

import "github.com/aidly/aidly-api/internal/models"

// AgentQueueResponse is the payload of GET /dashboard/agent-queue.
type AgentQueueResponse struct {
	AgentID    string               `json:"agent_id"`
	Tickets    []models.QueueTicket `json:"tickets"`
	Pagination models.Pagination    `json:"pagination"`
}

// AggregateRequest captures POST /metrics/aggregate payload.
type AggregateRequest struct {
	Date  string            `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Type  models.MetricType `json:"type" validate:"omitempty,oneof=daily hourly agents clients sla all"`
	Async bool              `json:"async"`
}

// AggregateResponse reports a synchronous run or a queued job.
type AggregateResponse struct {
	JobID  string                    `json:"job_id,omitempty"`
	Result *models.AggregationResult `json:"result,omitempty"`
}

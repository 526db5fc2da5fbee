package models

import (
	"database/sql/driver"
	"time"
)

// MetricType selects which roll-up the aggregator computes.
type MetricType string

const (
	MetricTypeDaily   MetricType = "daily"
	MetricTypeHourly  MetricType = "hourly"
	MetricTypeAgents  MetricType = "agents"
	MetricTypeClients MetricType = "clients"
	MetricTypeSLA     MetricType = "sla"
	MetricTypeAll     MetricType = "all"
)

// MetricTypes lists every concrete roll-up in execution order.
func MetricTypes() []MetricType {
	return []MetricType{MetricTypeDaily, MetricTypeHourly, MetricTypeAgents, MetricTypeClients, MetricTypeSLA}
}

// Valid reports whether t names a roll-up or "all".
func (t MetricType) Valid() bool {
	switch t {
	case MetricTypeDaily, MetricTypeHourly, MetricTypeAgents, MetricTypeClients, MetricTypeSLA, MetricTypeAll:
		return true
	}
	return false
}

// Expand resolves "all" into the concrete types.
func (t MetricType) Expand() []MetricType {
	if t == MetricTypeAll {
		return MetricTypes()
	}
	return []MetricType{t}
}

// TicketMetrics is the daily ticket roll-up keyed by calendar date.
type TicketMetrics struct {
	Date                 time.Time `db:"date" json:"date"`
	TotalTickets         int       `db:"total_tickets" json:"total_tickets"`
	NewTickets           int       `db:"new_tickets" json:"new_tickets"`
	OpenTickets          int       `db:"open_tickets" json:"open_tickets"`
	PendingTickets       int       `db:"pending_tickets" json:"pending_tickets"`
	OnHoldTickets        int       `db:"on_hold_tickets" json:"on_hold_tickets"`
	ResolvedTickets      int       `db:"resolved_tickets" json:"resolved_tickets"`
	ClosedTickets        int       `db:"closed_tickets" json:"closed_tickets"`
	CancelledTickets     int       `db:"cancelled_tickets" json:"cancelled_tickets"`
	LowPriority          int       `db:"low_priority" json:"low_priority"`
	MediumPriority       int       `db:"medium_priority" json:"medium_priority"`
	HighPriority         int       `db:"high_priority" json:"high_priority"`
	UrgentPriority       int       `db:"urgent_priority" json:"urgent_priority"`
	AvgFirstResponseTime float64   `db:"avg_first_response_time" json:"avg_first_response_time"`
	AvgResolutionTime    float64   `db:"avg_resolution_time" json:"avg_resolution_time"`
	CategoryBreakdown    CountMap  `db:"category_breakdown" json:"category_breakdown"`
	SourceBreakdown      CountMap  `db:"source_breakdown" json:"source_breakdown"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// HourlyTicketMetrics counts ticket flow for one hour of one day.
type HourlyTicketMetrics struct {
	Date            time.Time `db:"date" json:"date"`
	Hour            int       `db:"hour" json:"hour"`
	TicketsCreated  int       `db:"tickets_created" json:"tickets_created"`
	TicketsResolved int       `db:"tickets_resolved" json:"tickets_resolved"`
	TicketsClosed   int       `db:"tickets_closed" json:"tickets_closed"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// AgentMetrics is an agent's rolling-window performance.
type AgentMetrics struct {
	AgentID              string    `db:"agent_id" json:"agent_id"`
	PeriodStart          time.Time `db:"period_start" json:"period_start"`
	PeriodEnd            time.Time `db:"period_end" json:"period_end"`
	TicketsAssigned      int       `db:"tickets_assigned" json:"tickets_assigned"`
	TicketsResolved      int       `db:"tickets_resolved" json:"tickets_resolved"`
	TicketsClosed        int       `db:"tickets_closed" json:"tickets_closed"`
	AvgFirstResponseTime float64   `db:"avg_first_response_time" json:"avg_first_response_time"`
	AvgResolutionTime    float64   `db:"avg_resolution_time" json:"avg_resolution_time"`
	SatisfactionScore    float64   `db:"satisfaction_score" json:"satisfaction_score"`
	FeedbackCount        int       `db:"feedback_count" json:"feedback_count"`
	ActiveDays           int       `db:"active_days" json:"active_days"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// ClientMetrics is a customer's rolling-window activity.
type ClientMetrics struct {
	ClientID          string    `db:"client_id" json:"client_id"`
	PeriodStart       time.Time `db:"period_start" json:"period_start"`
	PeriodEnd         time.Time `db:"period_end" json:"period_end"`
	TicketsCreated    int       `db:"tickets_created" json:"tickets_created"`
	TicketsResolved   int       `db:"tickets_resolved" json:"tickets_resolved"`
	TicketsClosed     int       `db:"tickets_closed" json:"tickets_closed"`
	AvgResolutionTime float64   `db:"avg_resolution_time" json:"avg_resolution_time"`
	SatisfactionScore float64   `db:"satisfaction_score" json:"satisfaction_score"`
	FeedbackCount     int       `db:"feedback_count" json:"feedback_count"`
	ActiveDays        int       `db:"active_days" json:"active_days"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// SLAPriorityStats are SLA outcomes for one priority.
type SLAPriorityStats struct {
	Total                 int `json:"total"`
	FirstResponseMet      int `json:"first_response_met"`
	FirstResponseBreached int `json:"first_response_breached"`
	ResolutionMet         int `json:"resolution_met"`
	ResolutionBreached    int `json:"resolution_breached"`
}

// SLABreakdown maps priority to its SLA outcomes.
type SLABreakdown map[string]SLAPriorityStats

// Value marshals the breakdown for persistence.
func (b SLABreakdown) Value() (driver.Value, error) {
	if b == nil {
		return []byte("{}"), nil
	}
	return marshalJSON(b)
}

// Scan unmarshals a jsonb column.
func (b *SLABreakdown) Scan(value interface{}) error {
	*b = SLABreakdown{}
	return scanJSON(value, b)
}

// SLAMetrics is the daily SLA compliance roll-up.
type SLAMetrics struct {
	Date                  time.Time    `db:"date" json:"date"`
	TotalTickets          int          `db:"total_tickets" json:"total_tickets"`
	FirstResponseMet      int          `db:"first_response_met" json:"first_response_met"`
	FirstResponseBreached int          `db:"first_response_breached" json:"first_response_breached"`
	ResolutionMet         int          `db:"resolution_met" json:"resolution_met"`
	ResolutionBreached    int          `db:"resolution_breached" json:"resolution_breached"`
	ComplianceRate        float64      `db:"compliance_rate" json:"compliance_rate"`
	PriorityBreakdown     SLABreakdown `db:"priority_breakdown" json:"priority_breakdown"`
	UpdatedAt             time.Time    `db:"updated_at" json:"updated_at"`
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	From time.Time
	To   time.Time
}

// AggregationRequest asks for one roll-up of one day.
type AggregationRequest struct {
	Date time.Time  `json:"date"`
	Type MetricType `json:"type"`
}

// AggregationResult summarises a finished run.
type AggregationResult struct {
	Date     time.Time      `json:"date"`
	Types    []MetricType   `json:"types"`
	Rows     map[string]int `json:"rows"`
	Duration time.Duration  `json:"duration"`
}

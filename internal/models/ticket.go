package models

import "time"

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketStatusNew       TicketStatus = "new"
	TicketStatusOpen      TicketStatus = "open"
	TicketStatusPending   TicketStatus = "pending"
	TicketStatusOnHold    TicketStatus = "on_hold"
	TicketStatusResolved  TicketStatus = "resolved"
	TicketStatusClosed    TicketStatus = "closed"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// TicketPriority ranks urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// TicketPriorities lists priorities from least to most urgent.
func TicketPriorities() []TicketPriority {
	return []TicketPriority{TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent}
}

// QueueTicket is an open ticket on an agent's work queue.
type QueueTicket struct {
	ID                 string     `db:"id" json:"id"`
	Subject            string     `db:"subject" json:"subject"`
	ClientID           string     `db:"client_id" json:"client_id"`
	ClientName         *string    `db:"client_name" json:"client_name,omitempty"`
	Status             string     `db:"status" json:"status"`
	Priority           string     `db:"priority" json:"priority"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	FirstResponseDueAt *time.Time `db:"first_response_due_at" json:"first_response_due_at,omitempty"`
	ResolutionDueAt    *time.Time `db:"resolution_due_at" json:"resolution_due_at,omitempty"`
	FirstResponseAt    *time.Time `db:"first_response_at" json:"first_response_at,omitempty"`
	Overdue            bool       `db:"overdue" json:"overdue"`
}

// RealtimeCounters are the live ticket counters shown on the dashboard header.
type RealtimeCounters struct {
	OpenTickets       int `json:"open_tickets"`
	UnassignedTickets int `json:"unassigned_tickets"`
	OverdueTickets    int `json:"overdue_tickets"`
	TodayTickets      int `json:"today_tickets"`
}

// AgentStats combines the latest rolling metrics for an agent with live counters.
type AgentStats struct {
	AgentID       string           `json:"agent_id"`
	Metrics       *AgentMetrics    `json:"metrics,omitempty"`
	AssignedOpen  int              `json:"assigned_open"`
	AssignedToday int              `json:"assigned_today"`
	Counters      RealtimeCounters `json:"counters"`
}

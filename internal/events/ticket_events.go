// Package events turns ticket lifecycle events published on Kafka into notifications.
package events

import (
	"fmt"
	"time"

	"github.com/aidly/aidly-api/internal/models"
)

// Ticket event types consumed from the ticket-events topic.
const (
	TicketCreated       = "ticket.created"
	TicketAssigned      = "ticket.assigned"
	TicketCommented     = "ticket.commented"
	TicketStatusChanged = "ticket.status_changed"
)

// TicketEvent is the JSON payload published by the ticket service.
type TicketEvent struct {
	Type            string    `json:"type"`
	TicketID        string    `json:"ticket_id"`
	TicketNumber    string    `json:"ticket_number,omitempty"`
	Subject         string    `json:"subject"`
	ClientID        string    `json:"client_id"`
	AssignedAgentID string    `json:"assigned_agent_id,omitempty"`
	DepartmentID    string    `json:"department_id,omitempty"`
	ActorID         string    `json:"actor_id,omitempty"`
	ActorType       string    `json:"actor_type,omitempty"`
	Priority        string    `json:"priority,omitempty"`
	Status          string    `json:"status,omitempty"`
	PreviousStatus  string    `json:"previous_status,omitempty"`
	CommentExcerpt  string    `json:"comment_excerpt,omitempty"`
	IsInternal      bool      `json:"is_internal,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (e TicketEvent) label() string {
	if e.TicketNumber != "" {
		return e.TicketNumber
	}
	return e.TicketID
}

func (e TicketEvent) actedBy(id string) bool {
	return e.ActorID != "" && e.ActorID == id
}

// Translate maps a ticket event to the notifications it produces. Actors are never
// notified about their own actions and internal comments never reach the client.
func Translate(e TicketEvent) []models.NotificationEvent {
	var out []models.NotificationEvent
	agent := func(title, message string) {
		if e.AssignedAgentID == "" || e.actedBy(e.AssignedAgentID) {
			return
		}
		out = append(out, e.notification(models.Recipient{ID: e.AssignedAgentID, Type: models.NotifiableUser}, title, message, "/agent/tickets/"+e.TicketID))
	}
	client := func(title, message string) {
		if e.ClientID == "" || e.actedBy(e.ClientID) {
			return
		}
		out = append(out, e.notification(models.Recipient{ID: e.ClientID, Type: models.NotifiableClient}, title, message, "/portal/tickets/"+e.TicketID))
	}

	switch e.Type {
	case TicketCreated:
		client(
			fmt.Sprintf("We received your request %s", e.label()),
			fmt.Sprintf("Your ticket \"%s\" has been created. We will get back to you soon.", e.Subject),
		)
		agent(
			fmt.Sprintf("New ticket %s assigned to you", e.label()),
			e.Subject,
		)
	case TicketAssigned:
		agent(
			fmt.Sprintf("Ticket %s assigned to you", e.label()),
			e.Subject,
		)
	case TicketCommented:
		message := e.CommentExcerpt
		if message == "" {
			message = e.Subject
		}
		agent(fmt.Sprintf("New reply on %s", e.label()), message)
		if !e.IsInternal {
			client(fmt.Sprintf("New reply on your ticket %s", e.label()), message)
		}
	case TicketStatusChanged:
		if e.Status == "" || e.Status == e.PreviousStatus {
			return nil
		}
		client(
			fmt.Sprintf("Ticket %s is now %s", e.label(), e.Status),
			fmt.Sprintf("The status of \"%s\" changed from %s to %s.", e.Subject, orDash(e.PreviousStatus), e.Status),
		)
	}
	return out
}

func (e TicketEvent) notification(recipient models.Recipient, title, message, link string) models.NotificationEvent {
	return models.NotificationEvent{
		Type:         e.Type,
		Recipient:    recipient,
		Priority:     notificationPriority(e.Priority),
		Title:        title,
		Message:      message,
		ActionURL:    link,
		ActionText:   "View ticket",
		DepartmentID: e.DepartmentID,
		Data: map[string]interface{}{
			"ticket_id": e.TicketID,
			"status":    e.Status,
			"priority":  e.Priority,
		},
	}
}

func notificationPriority(ticketPriority string) models.NotificationPriority {
	switch models.TicketPriority(ticketPriority) {
	case models.TicketPriorityUrgent:
		return models.PriorityUrgent
	case models.TicketPriorityHigh:
		return models.PriorityHigh
	case models.TicketPriorityLow:
		return models.PriorityLow
	default:
		return models.PriorityNormal
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

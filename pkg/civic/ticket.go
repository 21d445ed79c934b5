package civic

import "time"

// TicketStatus represents the lifecycle state of a complaint ticket.
type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in-progress"
	StatusResolved   TicketStatus = "resolved"
	StatusClosed     TicketStatus = "closed"
)

// Priority is the urgency assigned to a ticket, either by default or by
// the classification gateway.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Ticket is a filed municipal complaint.
type Ticket struct {
	ID          string       `json:"id"`
	Channel     Channel      `json:"channel"`
	UserID      string       `json:"user_id"`
	DisplayName string       `json:"display_name"`
	Query       string       `json:"query"`
	Department  string       `json:"department"`
	Status      TicketStatus `json:"status"`
	Priority    Priority     `json:"priority"`
	Location    *Location    `json:"location,omitempty"`
	MediaCount  int          `json:"media_count"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	// Classification fields, populated after the async analysis pass.
	Summary          string   `json:"summary,omitempty"`
	RequestType      string   `json:"request_type,omitempty"`
	Confidence       int      `json:"confidence"`
	Reasoning        string   `json:"reasoning,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	IsFallback       bool     `json:"is_fallback"`
}

// MediaRef points to a stored media attachment.
type MediaRef struct {
	ID       string `json:"id"`
	TicketID string `json:"ticket_id"`
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Size     int    `json:"size"`
	Seq      int    `json:"seq"`
}

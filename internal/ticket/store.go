package ticket

import "github.com/civicline/civicline/pkg/civic"

// Store is the persistence interface for complaint tickets and their media.
type Store interface {
	// Create inserts a new ticket.
	Create(t *civic.Ticket) error
	// Get retrieves a ticket by ID.
	Get(id string) (*civic.Ticket, error)
	// ListByUser returns a user's tickets on a channel, newest first.
	ListByUser(channel civic.Channel, userID string, limit int) ([]*civic.Ticket, error)
	// AttachMedia stores a media item's bytes against a ticket. Ownership of
	// the bytes transfers to the store.
	AttachMedia(ticketID string, item civic.MediaItem) (*civic.MediaRef, error)
	// ListMedia returns the media attached to a ticket, in order.
	ListMedia(ticketID string) ([]*civic.MediaRef, error)
	// UpdateClassification applies a classification result to a ticket.
	UpdateClassification(ticketID string, res civic.ClassificationResult) error
	// UpdateStatus changes a ticket's status.
	UpdateStatus(ticketID string, status civic.TicketStatus) error
	// StatusCounts returns ticket counts per status for a user on a channel.
	StatusCounts(channel civic.Channel, userID string) (map[civic.TicketStatus]int, error)
	// List returns tickets matching the filter, newest first.
	List(filter Filter) ([]*civic.Ticket, error)
}

// Filter constrains ticket list queries.
type Filter struct {
	Status     *civic.TicketStatus
	Department string
	Channel    civic.Channel
	Query      string // text search on query and summary
	Limit      int    // 0 = no limit
}

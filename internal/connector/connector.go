package connector

import (
	"context"

	"github.com/civicline/civicline/pkg/civic"
)

// Connector is the interface for external messaging transports (Telegram,
// WhatsApp). Transport-specific payload parsing lives entirely inside the
// connector; the rest of the system only sees Inbound envelopes.
type Connector interface {
	// Name returns the channel this connector serves.
	Name() civic.Channel
	// Start begins listening for inbound events. Blocks until the context is
	// cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
	// SendText delivers a text message to a user on this channel.
	SendText(ctx context.Context, userID, text string) error
}

// Inbound is one parsed event received from a transport.
type Inbound struct {
	Channel     civic.Channel
	UserID      string // stable per end user on this channel
	DisplayName string
	Event       civic.Event
}

// Handler processes events received from transports. Implementations must
// serialize events that share a (channel, user) key.
type Handler func(ctx context.Context, in Inbound) error

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/civicline/civicline/internal/connector"
	"github.com/civicline/civicline/pkg/civic"
)

// Dispatcher routes outbound messages to the connector for each channel.
// Sends that fail with a retryable error (rate limits) are parked on the
// durable queue for a later flush.
type Dispatcher struct {
	mu         sync.RWMutex
	connectors map[civic.Channel]connector.Connector
	queue      *Queue
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher. queue may be nil, in which case
// retryable failures are only logged.
func NewDispatcher(queue *Queue, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		connectors: make(map[civic.Channel]connector.Connector),
		queue:      queue,
		logger:     logger,
	}
}

// Register adds a connector for its channel.
func (d *Dispatcher) Register(c connector.Connector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectors[c.Name()] = c
}

// SendText delivers text to a user on the given channel.
func (d *Dispatcher) SendText(ctx context.Context, channel civic.Channel, userID, text string) error {
	d.mu.RLock()
	c, ok := d.connectors[channel]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("dispatch: no connector for channel %q", channel)
	}

	err := c.SendText(ctx, userID, text)
	if err == nil {
		return nil
	}

	var retryable interface{ Retryable() bool }
	if d.queue != nil && errors.As(err, &retryable) && retryable.Retryable() {
		if qerr := d.queue.Enqueue(channel, userID, text); qerr != nil {
			d.logger.Error("queueing outbound message failed", "channel", channel, "user", userID, "error", qerr)
			return err
		}
		d.logger.Warn("outbound message queued for retry", "channel", channel, "user", userID, "error", err)
		return nil
	}
	return err
}

// Notify sends text and logs the failure instead of returning it. Used for
// best-effort messages where the caller has nothing useful to do on error.
func (d *Dispatcher) Notify(ctx context.Context, channel civic.Channel, userID, text string) {
	if err := d.SendText(ctx, channel, userID, text); err != nil {
		d.logger.Error("outbound send failed", "channel", channel, "user", userID, "error", err)
	}
}

// FlushQueue retries every queued outbound message.
func (d *Dispatcher) FlushQueue(ctx context.Context) (int, error) {
	if d.queue == nil {
		return 0, nil
	}
	return d.queue.Flush(ctx, d.SendText)
}

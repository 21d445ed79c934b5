package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civicline/civicline/pkg/civic"
)

// QueuedMessage is one outbound message waiting for redelivery.
type QueuedMessage struct {
	ID       string        `json:"id"`
	Channel  civic.Channel `json:"channel"`
	UserID   string        `json:"user_id"`
	Text     string        `json:"text"`
	QueuedAt time.Time     `json:"queued_at"`
}

// Queue is a durable outbound message queue backed by a JSONL file. Messages
// that could not be delivered (rate limits, provider outages) are appended
// here and flushed later by a scheduled job.
type Queue struct {
	mu   sync.Mutex
	path string
}

// NewQueue creates a queue stored at dir/outbound_queue.jsonl.
func NewQueue(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("queue: create dir: %w", err)
	}
	return &Queue{path: filepath.Join(dir, "outbound_queue.jsonl")}, nil
}

// Enqueue appends a message to the queue file.
func (q *Queue) Enqueue(channel civic.Channel, userID, text string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg := QueuedMessage{
		ID:       uuid.NewString(),
		Channel:  channel,
		UserID:   userID,
		Text:     text,
		QueuedAt: time.Now().UTC(),
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: marshal: %w", err)
	}

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("queue: open: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("queue: write: %w", err)
	}
	return nil
}

// Len returns the number of queued messages.
func (q *Queue) Len() (int, error) {
	msgs, err := q.load()
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// Flush attempts redelivery of every queued message via send. Messages that
// deliver are dropped; messages that fail again stay queued. Returns the
// number of messages delivered.
func (q *Queue) Flush(ctx context.Context, send func(ctx context.Context, channel civic.Channel, userID, text string) error) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	msgs, err := q.loadLocked()
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	var remaining []QueuedMessage
	delivered := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			remaining = append(remaining, msg)
			continue
		}
		if err := send(ctx, msg.Channel, msg.UserID, msg.Text); err != nil {
			remaining = append(remaining, msg)
			continue
		}
		delivered++
	}

	if err := q.rewriteLocked(remaining); err != nil {
		return delivered, err
	}
	return delivered, nil
}

func (q *Queue) load() ([]QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadLocked()
}

func (q *Queue) loadLocked() ([]QueuedMessage, error) {
	f, err := os.Open(q.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: open: %w", err)
	}
	defer f.Close()

	var msgs []QueuedMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg QueuedMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			// Skip corrupt lines rather than wedging the whole queue.
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("queue: read: %w", err)
	}
	return msgs, nil
}

func (q *Queue) rewriteLocked(msgs []QueuedMessage) error {
	if len(msgs) == 0 {
		if err := os.Remove(q.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("queue: remove: %w", err)
		}
		return nil
	}

	tmp := q.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("queue: create tmp: %w", err)
	}
	for _, msg := range msgs {
		line, err := json.Marshal(msg)
		if err != nil {
			f.Close()
			return fmt.Errorf("queue: marshal: %w", err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			f.Close()
			return fmt.Errorf("queue: write tmp: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("queue: close tmp: %w", err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		return fmt.Errorf("queue: replace: %w", err)
	}
	return nil
}

package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/civicline/civicline/pkg/civic"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue(t.TempDir())
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	return q
}

func TestEnqueueAndLen(t *testing.T) {
	q := newTestQueue(t)

	if n, _ := q.Len(); n != 0 {
		t.Fatalf("empty queue len = %d", n)
	}

	if err := q.Enqueue(civic.ChannelWhatsApp, "+911", "first"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(civic.ChannelTelegram, "1001", "second"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	n, err := q.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 2 {
		t.Errorf("len = %d", n)
	}
}

func TestFlushDeliversAll(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(civic.ChannelWhatsApp, "+911", "a")
	q.Enqueue(civic.ChannelWhatsApp, "+912", "b")

	var sent []string
	delivered, err := q.Flush(context.Background(), func(_ context.Context, _ civic.Channel, userID, text string) error {
		sent = append(sent, userID+":"+text)
		return nil
	})
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if delivered != 2 || len(sent) != 2 {
		t.Errorf("delivered = %d, sent = %v", delivered, sent)
	}
	if sent[0] != "+911:a" || sent[1] != "+912:b" {
		t.Errorf("order = %v", sent)
	}

	// Queue file is removed once empty.
	if n, _ := q.Len(); n != 0 {
		t.Errorf("len after flush = %d", n)
	}
	if _, err := os.Stat(q.path); !os.IsNotExist(err) {
		t.Errorf("queue file still exists: %v", err)
	}
}

func TestFlushKeepsFailures(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(civic.ChannelWhatsApp, "+911", "ok")
	q.Enqueue(civic.ChannelWhatsApp, "+912", "fail")

	delivered, err := q.Flush(context.Background(), func(_ context.Context, _ civic.Channel, userID, _ string) error {
		if userID == "+912" {
			return errors.New("still rate limited")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if delivered != 1 {
		t.Errorf("delivered = %d", delivered)
	}

	msgs, err := q.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 || msgs[0].UserID != "+912" {
		t.Errorf("remaining = %+v", msgs)
	}
}

func TestFlushStopsOnCancelledContext(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(civic.ChannelWhatsApp, "+911", "a")
	q.Enqueue(civic.ChannelWhatsApp, "+912", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivered, err := q.Flush(ctx, func(context.Context, civic.Channel, string, string) error {
		t.Fatal("send must not run with a cancelled context")
		return nil
	})
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if delivered != 0 {
		t.Errorf("delivered = %d", delivered)
	}
	if n, _ := q.Len(); n != 2 {
		t.Errorf("len = %d, messages must survive", n)
	}
}

func TestLoadSkipsCorruptLines(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(civic.ChannelTelegram, "1001", "good")

	f, err := os.OpenFile(q.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not json\n\n")
	f.Close()
	q.Enqueue(civic.ChannelTelegram, "1002", "also good")

	msgs, err := q.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("msgs = %+v", msgs)
	}
	if msgs[0].Text != "good" || msgs[1].Text != "also good" {
		t.Errorf("msgs = %+v", msgs)
	}
}

func TestQueueCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	q, err := NewQueue(dir)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	if err := q.Enqueue(civic.ChannelWhatsApp, "+911", "x"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

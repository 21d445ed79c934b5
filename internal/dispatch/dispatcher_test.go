package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/civicline/civicline/pkg/civic"
)

// stubConnector is a connector.Connector that fails with a scripted error.
type stubConnector struct {
	channel civic.Channel
	err     error
	sent    []string
}

func (s *stubConnector) Name() civic.Channel            { return s.channel }
func (s *stubConnector) Start(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (s *stubConnector) Stop() error                    { return nil }

func (s *stubConnector) SendText(_ context.Context, userID, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, userID+":"+text)
	return nil
}

// limitError mimics a transport rate limit.
type limitError struct{}

func (limitError) Error() string   { return "rate limited" }
func (limitError) Retryable() bool { return true }

func TestSendTextRoutesByChannel(t *testing.T) {
	tg := &stubConnector{channel: civic.ChannelTelegram}
	wa := &stubConnector{channel: civic.ChannelWhatsApp}
	d := NewDispatcher(nil, nil)
	d.Register(tg)
	d.Register(wa)

	if err := d.SendText(context.Background(), civic.ChannelWhatsApp, "+911", "hi"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(tg.sent) != 0 || len(wa.sent) != 1 {
		t.Errorf("tg = %v, wa = %v", tg.sent, wa.sent)
	}
}

func TestSendTextUnknownChannel(t *testing.T) {
	d := NewDispatcher(nil, nil)
	if err := d.SendText(context.Background(), civic.ChannelTelegram, "1001", "hi"); err == nil {
		t.Fatal("expected error for unregistered channel")
	}
}

func TestRetryableFailureQueues(t *testing.T) {
	q := newTestQueue(t)
	d := NewDispatcher(q, nil)
	d.Register(&stubConnector{channel: civic.ChannelWhatsApp, err: &limitError{}})

	if err := d.SendText(context.Background(), civic.ChannelWhatsApp, "+911", "queued"); err != nil {
		t.Fatalf("retryable failure should be absorbed, got %v", err)
	}

	msgs, err := q.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "queued" || msgs[0].Channel != civic.ChannelWhatsApp {
		t.Errorf("queued = %+v", msgs)
	}
}

func TestPermanentFailurePropagates(t *testing.T) {
	q := newTestQueue(t)
	d := NewDispatcher(q, nil)
	d.Register(&stubConnector{channel: civic.ChannelWhatsApp, err: errors.New("invalid number")})

	if err := d.SendText(context.Background(), civic.ChannelWhatsApp, "+911", "x"); err == nil {
		t.Fatal("permanent failure must propagate")
	}
	if n, _ := q.Len(); n != 0 {
		t.Errorf("permanent failures must not be queued, len = %d", n)
	}
}

func TestRetryableFailureWithoutQueuePropagates(t *testing.T) {
	d := NewDispatcher(nil, nil)
	d.Register(&stubConnector{channel: civic.ChannelWhatsApp, err: &limitError{}})

	if err := d.SendText(context.Background(), civic.ChannelWhatsApp, "+911", "x"); err == nil {
		t.Fatal("without a queue the error must propagate")
	}
}

func TestFlushQueueRedelivers(t *testing.T) {
	q := newTestQueue(t)
	d := NewDispatcher(q, nil)

	failing := &stubConnector{channel: civic.ChannelWhatsApp, err: &limitError{}}
	d.Register(failing)
	d.SendText(context.Background(), civic.ChannelWhatsApp, "+911", "parked")

	// The rate limit clears; the next flush delivers.
	failing.err = nil
	delivered, err := d.FlushQueue(context.Background())
	if err != nil {
		t.Fatalf("FlushQueue: %v", err)
	}
	if delivered != 1 {
		t.Errorf("delivered = %d", delivered)
	}
	if len(failing.sent) != 1 || failing.sent[0] != "+911:parked" {
		t.Errorf("sent = %v", failing.sent)
	}
	if n, _ := q.Len(); n != 0 {
		t.Errorf("len = %d", n)
	}
}

func TestFlushQueueWithoutQueue(t *testing.T) {
	d := NewDispatcher(nil, nil)
	delivered, err := d.FlushQueue(context.Background())
	if err != nil || delivered != 0 {
		t.Errorf("delivered = %d, err = %v", delivered, err)
	}
}

package logbuf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func entryAt(t time.Time, level, msg string) Entry {
	return Entry{Time: t, Level: level, Message: msg}
}

func TestRingEviction(t *testing.T) {
	r := NewRing(3)
	base := time.Now()
	for i, msg := range []string{"a", "b", "c", "d", "e"} {
		r.Add(entryAt(base.Add(time.Duration(i)*time.Second), "INFO", msg))
	}

	got := r.Recent(time.Time{}, slog.LevelDebug, 0)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	want := []string{"c", "d", "e"}
	for i, e := range got {
		if e.Message != want[i] {
			t.Errorf("entry %d: got %q, want %q", i, e.Message, want[i])
		}
	}
}

func TestRingLevelFilter(t *testing.T) {
	r := NewRing(10)
	now := time.Now()
	r.Add(entryAt(now, "DEBUG", "noise"))
	r.Add(entryAt(now, "INFO", "info"))
	r.Add(entryAt(now, "ERROR", "boom"))

	got := r.Recent(time.Time{}, slog.LevelWarn, 0)
	if len(got) != 1 || got[0].Message != "boom" {
		t.Fatalf("expected only the error entry, got %+v", got)
	}
}

func TestRingSinceAndLimit(t *testing.T) {
	r := NewRing(10)
	base := time.Now()
	for i := 0; i < 6; i++ {
		r.Add(entryAt(base.Add(time.Duration(i)*time.Minute), "INFO", string(rune('a'+i))))
	}

	got := r.Recent(base.Add(2*time.Minute), slog.LevelDebug, 0)
	if len(got) != 4 {
		t.Fatalf("since filter: expected 4 entries, got %d", len(got))
	}

	got = r.Recent(time.Time{}, slog.LevelDebug, 2)
	if len(got) != 2 || got[0].Message != "e" || got[1].Message != "f" {
		t.Fatalf("limit should keep the newest entries, got %+v", got)
	}
}

func TestHandlerCapturesAllLevels(t *testing.T) {
	ring := NewRing(10)
	inner := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(NewHandler(inner, ring))

	logger.Debug("below inner level")
	logger.Error("visible")

	got := ring.Recent(time.Time{}, slog.LevelDebug, 0)
	if len(got) != 2 {
		t.Fatalf("ring should capture all levels, got %d entries", len(got))
	}
}

func TestHandlerFields(t *testing.T) {
	ring := NewRing(10)
	inner := slog.NewJSONHandler(io.Discard, nil)
	h := NewHandler(inner, ring).WithAttrs([]slog.Attr{slog.String("ticket", "TKT-1")})
	logger := slog.New(h).WithGroup("store")

	logger.Info("saved", "rows", 3, "error", errors.New("disk full"))

	got := ring.Recent(time.Time{}, slog.LevelDebug, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	fields := got[0].Fields
	if fields["ticket"] != "TKT-1" {
		t.Errorf("bound attr missing: %+v", fields)
	}
	if fields["store.rows"] != int64(3) {
		t.Errorf("grouped attr missing: %+v", fields)
	}
	if fields["store.error"] != "disk full" {
		t.Errorf("errors should flatten to strings, got %+v", fields["store.error"])
	}
}

func TestHandlerAttrsBoundInsideGroup(t *testing.T) {
	ring := NewRing(10)
	inner := slog.NewJSONHandler(io.Discard, nil)
	logger := slog.New(NewHandler(inner, ring)).
		With("ticket", "TKT-1").
		WithGroup("store").
		With("table", "tickets")

	logger.Info("saved", "rows", 3)

	got := ring.Recent(time.Time{}, slog.LevelDebug, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	fields := got[0].Fields
	if fields["ticket"] != "TKT-1" {
		t.Errorf("attr bound before the group must stay unqualified: %+v", fields)
	}
	if fields["store.table"] != "tickets" {
		t.Errorf("attr bound inside the group must carry its prefix: %+v", fields)
	}
	if fields["store.rows"] != int64(3) {
		t.Errorf("record attr missing: %+v", fields)
	}
}

func TestHandlerDelegates(t *testing.T) {
	ring := NewRing(4)
	var handled []slog.Record
	inner := recordSink{records: &handled, level: slog.LevelInfo}
	h := NewHandler(inner, ring)

	rec := slog.NewRecord(time.Now(), slog.LevelDebug, "quiet", 0)
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	rec = slog.NewRecord(time.Now(), slog.LevelInfo, "loud", 0)
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	if len(handled) != 1 || handled[0].Message != "loud" {
		t.Fatalf("inner handler should only see records at its level, got %d", len(handled))
	}
}

type recordSink struct {
	records *[]slog.Record
	level   slog.Level
}

func (s recordSink) Enabled(_ context.Context, l slog.Level) bool { return l >= s.level }
func (s recordSink) Handle(_ context.Context, r slog.Record) error {
	*s.records = append(*s.records, r)
	return nil
}
func (s recordSink) WithAttrs([]slog.Attr) slog.Handler { return s }
func (s recordSink) WithGroup(string) slog.Handler      { return s }

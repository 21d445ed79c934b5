package logbuf

import (
	"context"
	"log/slog"
)

// Handler tees slog records into a Ring while forwarding them to a wrapped
// handler. The ring captures every level; the wrapped handler keeps its own
// level filter.
type Handler struct {
	ring   *Ring
	next   slog.Handler
	bound  []slog.Attr
	groups []string
}

// NewHandler wraps next so that all records are also captured in ring.
func NewHandler(next slog.Handler, ring *Ring) *Handler {
	return &Handler{ring: ring, next: next}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool {
	// The ring wants every record; the wrapped handler filters in Handle.
	return true
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	fields := make(map[string]any, len(h.bound)+rec.NumAttrs())
	// Bound attrs were already qualified with the groups open when they were
	// added; only the record's own attrs take the current group prefix.
	for _, a := range h.bound {
		fields[a.Key] = flatten(a.Value)
	}
	rec.Attrs(func(a slog.Attr) bool {
		fields[h.qualify(a.Key)] = flatten(a.Value)
		return true
	})
	if len(fields) == 0 {
		fields = nil
	}

	h.ring.Add(Entry{
		Time:    rec.Time,
		Level:   rec.Level.String(),
		Message: rec.Message,
		Fields:  fields,
	})

	if h.next.Enabled(ctx, rec.Level) {
		return h.next.Handle(ctx, rec)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	qualified := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		qualified[i] = slog.Attr{Key: h.qualify(a.Key), Value: a.Value}
	}
	return &Handler{
		ring:   h.ring,
		next:   h.next.WithAttrs(attrs),
		bound:  append(h.bound[:len(h.bound):len(h.bound)], qualified...),
		groups: h.groups,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		ring:   h.ring,
		next:   h.next.WithGroup(name),
		bound:  h.bound,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}

func (h *Handler) qualify(key string) string {
	for i := len(h.groups) - 1; i >= 0; i-- {
		key = h.groups[i] + "." + key
	}
	return key
}

// flatten resolves an slog value to something json.Marshal renders usefully.
// Errors in particular would otherwise serialize as empty objects.
func flatten(v slog.Value) any {
	raw := v.Resolve().Any()
	if err, ok := raw.(error); ok {
		return err.Error()
	}
	return raw
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/civicline/civicline/internal/ticket"
	"github.com/civicline/civicline/pkg/civic"
)

// mockTicketService implements TicketService for testing.
type mockTicketService struct {
	tickets    []*civic.Ticket
	media      map[string][]*civic.MediaRef
	lastFilter ticket.Filter
	statusSet  map[string]civic.TicketStatus
}

func (m *mockTicketService) List(filter ticket.Filter) ([]*civic.Ticket, error) {
	m.lastFilter = filter
	return m.tickets, nil
}

func (m *mockTicketService) Get(id string) (*civic.Ticket, error) {
	for _, t := range m.tickets {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockTicketService) ListMedia(ticketID string) ([]*civic.MediaRef, error) {
	return m.media[ticketID], nil
}

func (m *mockTicketService) UpdateStatus(id string, status civic.TicketStatus) error {
	if _, err := m.Get(id); err != nil {
		return err
	}
	if m.statusSet == nil {
		m.statusSet = make(map[string]civic.TicketStatus)
	}
	m.statusSet[id] = status
	return nil
}

func newTestServer(svc TicketService, key string) *Server {
	return NewServer(svc, Config{Host: "127.0.0.1", Port: 0, Key: key}, nil, nil, nil)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&mockTicketService{}, "")
	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestListTickets(t *testing.T) {
	svc := &mockTicketService{
		tickets: []*civic.Ticket{
			{ID: "TKT-1", Query: "pothole", Status: civic.StatusOpen},
		},
	}
	srv := newTestServer(svc, "")
	req := httptest.NewRequest("GET", "/api/tickets?status=open&department=roads&limit=10", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if svc.lastFilter.Status == nil || *svc.lastFilter.Status != civic.StatusOpen {
		t.Errorf("status filter not applied: %+v", svc.lastFilter)
	}
	if svc.lastFilter.Department != "roads" || svc.lastFilter.Limit != 10 {
		t.Errorf("filter = %+v", svc.lastFilter)
	}
}

func TestListTickets_EmptyIsArray(t *testing.T) {
	srv := newTestServer(&mockTicketService{}, "")
	req := httptest.NewRequest("GET", "/api/tickets", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("empty list should encode as [], got %q", got)
	}
}

func TestGetTicket(t *testing.T) {
	svc := &mockTicketService{
		tickets: []*civic.Ticket{{ID: "TKT-1", Query: "streetlight out"}},
	}
	srv := newTestServer(svc, "")
	req := httptest.NewRequest("GET", "/api/tickets/TKT-1", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestGetTicket_NotFound(t *testing.T) {
	srv := newTestServer(&mockTicketService{}, "")
	req := httptest.NewRequest("GET", "/api/tickets/nope", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListMedia(t *testing.T) {
	svc := &mockTicketService{
		media: map[string][]*civic.MediaRef{
			"TKT-1": {{ID: "m1", TicketID: "TKT-1", Filename: "a.jpg"}},
		},
	}
	srv := newTestServer(svc, "")
	req := httptest.NewRequest("GET", "/api/tickets/TKT-1/media", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	var refs []*civic.MediaRef
	json.NewDecoder(w.Body).Decode(&refs)
	if len(refs) != 1 || refs[0].Filename != "a.jpg" {
		t.Errorf("refs = %+v", refs)
	}
}

func TestUpdateStatus(t *testing.T) {
	svc := &mockTicketService{
		tickets: []*civic.Ticket{{ID: "TKT-1", Status: civic.StatusOpen}},
	}
	srv := newTestServer(svc, "")
	req := httptest.NewRequest("PATCH", "/api/tickets/TKT-1/status", strings.NewReader(`{"status":"resolved"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if svc.statusSet["TKT-1"] != civic.StatusResolved {
		t.Errorf("status not applied: %+v", svc.statusSet)
	}
}

func TestUpdateStatus_Invalid(t *testing.T) {
	svc := &mockTicketService{
		tickets: []*civic.Ticket{{ID: "TKT-1"}},
	}
	srv := newTestServer(svc, "")
	req := httptest.NewRequest("PATCH", "/api/tickets/TKT-1/status", strings.NewReader(`{"status":"bogus"}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStats(t *testing.T) {
	now := time.Now()
	svc := &mockTicketService{
		tickets: []*civic.Ticket{
			{ID: "TKT-1", Status: civic.StatusOpen, Department: "roads", Channel: civic.ChannelTelegram, MediaCount: 2, CreatedAt: now},
			{ID: "TKT-2", Status: civic.StatusOpen, Department: "water", Channel: civic.ChannelWhatsApp, IsFallback: true, CreatedAt: now.Add(-time.Hour)},
			{ID: "TKT-3", Status: civic.StatusResolved, Department: "roads", Channel: civic.ChannelTelegram, CreatedAt: now.Add(-2 * time.Hour)},
		},
	}
	srv := newTestServer(svc, "")
	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp statsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Total != 3 {
		t.Errorf("total = %d", resp.Total)
	}
	if resp.ByStatus["open"] != 2 || resp.ByStatus["resolved"] != 1 {
		t.Errorf("by_status = %v", resp.ByStatus)
	}
	if resp.ByDept["roads"] != 2 {
		t.Errorf("by_department = %v", resp.ByDept)
	}
	if resp.Fallbacks != 1 || resp.WithMedia != 1 {
		t.Errorf("fallbacks = %d, with_media = %d", resp.Fallbacks, resp.WithMedia)
	}
}

func TestAuth_Required(t *testing.T) {
	srv := newTestServer(&mockTicketService{}, "secret-key")

	// No auth header
	req := httptest.NewRequest("GET", "/api/tickets", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("no auth: status = %d, want 401", w.Code)
	}

	// Wrong key
	req = httptest.NewRequest("GET", "/api/tickets", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", w.Code)
	}

	// Correct key
	req = httptest.NewRequest("GET", "/api/tickets", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("correct key: status = %d, want 200", w.Code)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	srv := newTestServer(&mockTicketService{}, "secret-key")
	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	// Health should NOT require auth
	if w.Code != http.StatusOK {
		t.Errorf("health should not require auth, status = %d", w.Code)
	}
}

func TestWebhookMount(t *testing.T) {
	var hit bool
	webhook := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	})
	srv := NewServer(&mockTicketService{}, Config{Key: "secret-key"}, nil, nil, webhook)

	// Webhook bypasses Bearer auth.
	req := httptest.NewRequest("POST", "/webhook/whatsapp", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if !hit || w.Code != http.StatusOK {
		t.Errorf("webhook not reachable: hit=%v status=%d", hit, w.Code)
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(&mockTicketService{}, "")
	req := httptest.NewRequest("OPTIONS", "/api/tickets", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin = %q", got)
	}
}

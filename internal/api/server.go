package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/civicline/civicline/internal/logbuf"
	"github.com/civicline/civicline/internal/ticket"
	"github.com/civicline/civicline/pkg/civic"
)

// LogQuerier abstracts log access to avoid coupling to logbuf directly.
type LogQuerier interface {
	Recent(since time.Time, minLevel slog.Level, limit int) []logbuf.Entry
}

// TicketService is what the API server needs from the ticket layer.
type TicketService interface {
	List(filter ticket.Filter) ([]*civic.Ticket, error)
	Get(id string) (*civic.Ticket, error)
	ListMedia(ticketID string) ([]*civic.MediaRef, error)
	UpdateStatus(id string, status civic.TicketStatus) error
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth
}

// Server is the civicline REST API server. It also hosts the WhatsApp
// inbound webhook when one is provided.
type Server struct {
	svc    TicketService
	cfg    Config
	logger *slog.Logger
	logs   LogQuerier
	srv    *http.Server
}

// NewServer creates the API server. logs and webhook may be nil.
func NewServer(svc TicketService, cfg Config, logger *slog.Logger, logs LogQuerier, webhook http.Handler) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		logs:   logs,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/tickets", s.requireAuth(s.handleListTickets))
	mux.HandleFunc("GET /api/tickets/{id}", s.requireAuth(s.handleGetTicket))
	mux.HandleFunc("GET /api/tickets/{id}/media", s.requireAuth(s.handleListMedia))
	mux.HandleFunc("PATCH /api/tickets/{id}/status", s.requireAuth(s.handleUpdateStatus))
	mux.HandleFunc("GET /api/stats", s.requireAuth(s.handleStats))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))
	if webhook != nil {
		// Twilio authenticates webhooks with its own signature scheme, not
		// our API key, so the route bypasses requireAuth.
		mux.Handle("POST /webhook/whatsapp", webhook)
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	filter := ticket.Filter{}
	if status := r.URL.Query().Get("status"); status != "" {
		ts := civic.TicketStatus(status)
		filter.Status = &ts
	}
	if dept := r.URL.Query().Get("department"); dept != "" {
		filter.Department = dept
	}
	if ch := r.URL.Query().Get("channel"); ch != "" {
		filter.Channel = civic.Channel(ch)
	}
	if q := r.URL.Query().Get("q"); q != "" {
		filter.Query = q
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = n
		}
	}

	tickets, err := s.svc.List(filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if tickets == nil {
		tickets = []*civic.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Get(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not found"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	refs, err := s.svc.ListMedia(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if refs == nil {
		refs = []*civic.MediaRef{}
	}
	writeJSON(w, http.StatusOK, refs)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	status := civic.TicketStatus(req.Status)
	switch status {
	case civic.StatusOpen, civic.StatusInProgress, civic.StatusResolved, civic.StatusClosed:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	if err := s.svc.UpdateStatus(r.PathValue("id"), status); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type statsResponse struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	ByDept      map[string]int `json:"by_department"`
	ByChannel   map[string]int `json:"by_channel"`
	Fallbacks   int            `json:"fallback_classifications"`
	WithMedia   int            `json:"with_media"`
	LastCreated *time.Time     `json:"last_created,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	tickets, err := s.svc.List(ticket.Filter{})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := statsResponse{
		Total:     len(tickets),
		ByStatus:  make(map[string]int),
		ByDept:    make(map[string]int),
		ByChannel: make(map[string]int),
	}
	for _, t := range tickets {
		resp.ByStatus[string(t.Status)]++
		if t.Department != "" {
			resp.ByDept[t.Department]++
		}
		resp.ByChannel[string(t.Channel)]++
		if t.IsFallback {
			resp.Fallbacks++
		}
		if t.MediaCount > 0 {
			resp.WithMedia++
		}
		if resp.LastCreated == nil || t.CreatedAt.After(*resp.LastCreated) {
			created := t.CreatedAt
			resp.LastCreated = &created
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	minLevel := slog.LevelDebug
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		switch strings.ToLower(lvl) {
		case "info":
			minLevel = slog.LevelInfo
		case "warn":
			minLevel = slog.LevelWarn
		case "error":
			minLevel = slog.LevelError
		}
	}

	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = time.UnixMilli(ms)
		}
	}

	entries := s.logs.Recent(since, minLevel, limit)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

package ticket

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/civicline/civicline/pkg/civic"
)

// SQLiteStore implements Store using SQLite. Media bytes live in a separate
// table so ticket listings stay cheap.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id            TEXT PRIMARY KEY,
			channel       TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			display_name  TEXT NOT NULL DEFAULT '',
			query         TEXT NOT NULL,
			department    TEXT NOT NULL DEFAULT 'general',
			status        TEXT NOT NULL DEFAULT 'open',
			priority      TEXT NOT NULL DEFAULT 'medium',
			latitude      REAL,
			longitude     REAL,
			summary       TEXT NOT NULL DEFAULT '',
			request_type  TEXT NOT NULL DEFAULT '',
			confidence    INTEGER NOT NULL DEFAULT 0,
			reasoning     TEXT NOT NULL DEFAULT '',
			actions       TEXT NOT NULL DEFAULT '[]',
			is_fallback   INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS ticket_media (
			id        TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL REFERENCES tickets(id),
			filename  TEXT NOT NULL,
			mime      TEXT NOT NULL,
			seq       INTEGER NOT NULL,
			data      BLOB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets(channel, user_id);
		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_media_ticket ON ticket_media(ticket_id);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

// GenerateTicketID creates a citizen-visible ticket ID.
func GenerateTicketID() string {
	n, _ := rand.Int(rand.Reader, big.NewInt(1000))
	return fmt.Sprintf("TKT-%d-%d", time.Now().UnixMilli(), n)
}

func (s *SQLiteStore) Create(t *civic.Ticket) error {
	var lat, lon *float64
	if t.Location != nil {
		lat, lon = &t.Location.Latitude, &t.Location.Longitude
	}
	actions, _ := json.Marshal(t.SuggestedActions)

	_, err := s.db.Exec(`
		INSERT INTO tickets (id, channel, user_id, display_name, query, department, status,
			priority, latitude, longitude, summary, request_type, confidence, reasoning,
			actions, is_fallback, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, string(t.Channel), t.UserID, t.DisplayName, t.Query, t.Department, string(t.Status),
		string(t.Priority), lat, lon, t.Summary, t.RequestType, t.Confidence, t.Reasoning,
		string(actions), boolToInt(t.IsFallback),
		t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("ticket store: create: %w", err)
	}
	return nil
}

const ticketColumns = `id, channel, user_id, display_name, query, department, status,
	priority, latitude, longitude, summary, request_type, confidence, reasoning,
	actions, is_fallback, created_at, updated_at`

func (s *SQLiteStore) Get(id string) (*civic.Ticket, error) {
	row := s.db.QueryRow(`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ticket %q not found", id)
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}

	var count int
	s.db.QueryRow(`SELECT COUNT(*) FROM ticket_media WHERE ticket_id = ?`, id).Scan(&count)
	t.MediaCount = count
	return t, nil
}

func (s *SQLiteStore) ListByUser(channel civic.Channel, userID string, limit int) ([]*civic.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE channel = ? AND user_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query, string(channel), userID)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list by user: %w", err)
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (s *SQLiteStore) List(filter Filter) ([]*civic.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	var args []any

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.Department != "" {
		query += " AND department = ?"
		args = append(args, filter.Department)
	}
	if filter.Channel != "" {
		query += " AND channel = ?"
		args = append(args, string(filter.Channel))
	}
	if filter.Query != "" {
		query += " AND (query LIKE ? OR summary LIKE ?)"
		pattern := fmt.Sprintf("%%%s%%", filter.Query)
		args = append(args, pattern, pattern)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (s *SQLiteStore) AttachMedia(ticketID string, item civic.MediaItem) (*civic.MediaRef, error) {
	ref := &civic.MediaRef{
		ID:       uuid.NewString(),
		TicketID: ticketID,
		Filename: item.Filename,
		MIME:     item.MIME,
		Size:     len(item.Data),
		Seq:      item.Seq,
	}

	_, err := s.db.Exec(`INSERT INTO ticket_media (id, ticket_id, filename, mime, seq, data) VALUES (?, ?, ?, ?, ?, ?)`,
		ref.ID, ticketID, item.Filename, item.MIME, item.Seq, item.Data)
	if err != nil {
		return nil, fmt.Errorf("ticket store: attach media: %w", err)
	}
	return ref, nil
}

func (s *SQLiteStore) ListMedia(ticketID string) ([]*civic.MediaRef, error) {
	rows, err := s.db.Query(`SELECT id, filename, mime, seq, LENGTH(data) FROM ticket_media WHERE ticket_id = ? ORDER BY seq`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list media: %w", err)
	}
	defer rows.Close()

	var refs []*civic.MediaRef
	for rows.Next() {
		ref := &civic.MediaRef{TicketID: ticketID}
		if err := rows.Scan(&ref.ID, &ref.Filename, &ref.MIME, &ref.Seq, &ref.Size); err != nil {
			return nil, fmt.Errorf("ticket store: scan media: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *SQLiteStore) UpdateClassification(ticketID string, res civic.ClassificationResult) error {
	actions, _ := json.Marshal(res.SuggestedActions)
	now := time.Now().Format(time.RFC3339)

	result, err := s.db.Exec(`
		UPDATE tickets SET department = ?, priority = ?, summary = ?, request_type = ?,
			confidence = ?, reasoning = ?, actions = ?, is_fallback = ?, updated_at = ?
		WHERE id = ?
	`, res.Department, string(res.Priority), res.SimplifiedSummary, string(res.RequestType),
		res.Confidence, res.Reasoning, string(actions), boolToInt(res.IsFallback), now, ticketID)
	if err != nil {
		return fmt.Errorf("ticket store: update classification: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ticket %q not found", ticketID)
	}
	return nil
}

func (s *SQLiteStore) UpdateStatus(ticketID string, status civic.TicketStatus) error {
	now := time.Now().Format(time.RFC3339)
	result, err := s.db.Exec(`UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, ticketID)
	if err != nil {
		return fmt.Errorf("ticket store: update status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ticket %q not found", ticketID)
	}
	return nil
}

func (s *SQLiteStore) StatusCounts(channel civic.Channel, userID string) (map[civic.TicketStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tickets WHERE channel = ? AND user_id = ? GROUP BY status`,
		string(channel), userID)
	if err != nil {
		return nil, fmt.Errorf("ticket store: status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[civic.TicketStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("ticket store: scan counts: %w", err)
		}
		counts[civic.TicketStatus(status)] = n
	}
	return counts, rows.Err()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(row scannable) (*civic.Ticket, error) {
	var t civic.Ticket
	var channel, status, priority, actionsJSON, createdAt, updatedAt string
	var lat, lon *float64
	var fallback int

	err := row.Scan(&t.ID, &channel, &t.UserID, &t.DisplayName, &t.Query, &t.Department,
		&status, &priority, &lat, &lon, &t.Summary, &t.RequestType, &t.Confidence,
		&t.Reasoning, &actionsJSON, &fallback, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Channel = civic.Channel(channel)
	t.Status = civic.TicketStatus(status)
	t.Priority = civic.Priority(priority)
	t.IsFallback = fallback != 0
	if lat != nil && lon != nil {
		t.Location = &civic.Location{Latitude: *lat, Longitude: *lon}
	}
	json.Unmarshal([]byte(actionsJSON), &t.SuggestedActions)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &t, nil
}

func collectTickets(rows *sql.Rows) ([]*civic.Ticket, error) {
	var tickets []*civic.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

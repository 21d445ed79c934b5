package intake

import (
	"sync"
	"time"

	"github.com/civicline/civicline/pkg/civic"
)

// State is the position of a conversation in the complaint intake flow.
type State string

const (
	// StateIdle is implicit: an idle user has no session in the store.
	StateIdle State = "idle"
	// StateAwaitingQuery waits for the complaint description after a bare /ticket.
	StateAwaitingQuery State = "awaiting_query"
	// StateAwaitingMediaConfirmation waits for a yes/no on attaching media.
	StateAwaitingMediaConfirmation State = "awaiting_media_confirmation"
	// StateCollectingMedia accumulates photos/videos until "done" or the cap.
	StateCollectingMedia State = "collecting_media"
)

// Session is one in-progress complaint submission, keyed by (channel, user).
type Session struct {
	Channel        civic.Channel
	UserID         string
	DisplayName    string
	State          State
	Query          string
	Media          []civic.MediaItem
	Location       *civic.Location
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Key returns the session store key for a (channel, user) pair.
func Key(channel civic.Channel, userID string) string {
	return string(channel) + ":" + userID
}

// Store holds one session per (channel, user). Callers must serialize
// concurrent events for the same key; the store itself only guards its map.
type Store interface {
	Get(channel civic.Channel, userID string) (*Session, bool)
	Put(s *Session)
	Delete(channel civic.Channel, userID string)
	// All returns a snapshot of every live session, for external maintenance
	// like idle-session sweeps.
	All() []*Session
}

// MemoryStore is the in-memory Store used by the daemon.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(channel civic.Channel, userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[Key(channel, userID)]
	return s, ok
}

func (m *MemoryStore) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[Key(s.Channel, s.UserID)] = s
}

func (m *MemoryStore) Delete(channel civic.Channel, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, Key(channel, userID))
}

func (m *MemoryStore) All() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

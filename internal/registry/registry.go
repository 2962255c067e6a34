package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"serwer-licencji/internal/database"
)

// Entry is the volatile liveness view of one active session. The store
// remains the source of truth; the registry only answers "who is alive"
// quickly and without a database round trip.
type Entry struct {
	SessionID     uuid.UUID
	AllocationID  string
	SoftwareID    string
	UserID        int64
	ClientAddress string
	LastHeartbeat time.Time
}

type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]Entry
}

func New() *Registry {
	return &Registry{
		entries: make(map[uuid.UUID]Entry),
	}
}

func (r *Registry) Add(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.SessionID] = entry
}

func (r *Registry) Remove(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
}

// Touch refreshes the staleness clock for a session and reports whether
// the session was present.
func (r *Registry) Touch(sessionID uuid.UUID, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[sessionID]
	if !ok {
		return false
	}
	entry.LastHeartbeat = now
	r.entries[sessionID] = entry
	return true
}

func (r *Registry) Get(sessionID uuid.UUID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[sessionID]
	return entry, ok
}

// Snapshot copies the current entries so callers can iterate without
// holding the lock while the server keeps mutating the map.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	return entries
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Rebuild replaces the registry contents with the active sessions read
// from the store. Used at startup so sessions held across a server restart
// keep their seats until they expire or check in.
func (r *Registry) Rebuild(sessions []database.ActiveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[uuid.UUID]Entry, len(sessions))
	for _, s := range sessions {
		r.entries[s.SessionID] = Entry{
			SessionID:     s.SessionID,
			AllocationID:  s.AllocationID,
			SoftwareID:    s.SoftwareID,
			UserID:        s.UserID,
			ClientAddress: s.ClientAddress,
			LastHeartbeat: s.LastHeartbeat,
		}
	}
}

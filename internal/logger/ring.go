package logger

import (
	"sync"
	"time"
)

// DefaultRingCapacity is the minimum number of entries the dashboard expects
// to be able to read back.
const DefaultRingCapacity = 1000

// Entry is one captured log line with its task domain tag.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Domain    string    `json:"domain"`
}

// Broadcast receives every captured entry, always with all three fields.
// Set by the dashboard; may be nil.
type Broadcast func(level, message, domain string)

// Ring is a bounded, concurrency-safe log buffer. Writers append under a
// short lock; readers receive a snapshot copy.
type Ring struct {
	mu        sync.Mutex
	entries   []Entry
	capacity  int
	broadcast Broadcast
}

// NewRing creates a ring buffer with the given capacity. Capacities below
// DefaultRingCapacity are raised to it.
func NewRing(capacity int) *Ring {
	if capacity < DefaultRingCapacity {
		capacity = DefaultRingCapacity
	}
	return &Ring{capacity: capacity}
}

// SetBroadcast installs the dashboard callback. Passing nil removes it.
func (r *Ring) SetBroadcast(fn Broadcast) {
	r.mu.Lock()
	r.broadcast = fn
	r.mu.Unlock()
}

// Append records an entry, evicting the oldest when full, and invokes the
// broadcast callback outside the lock.
func (r *Ring) Append(level, message, domain string) {
	entry := Entry{Timestamp: time.Now().UTC(), Level: level, Message: message, Domain: domain}

	r.mu.Lock()
	if len(r.entries) >= r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries[len(r.entries)-1] = entry
	} else {
		r.entries = append(r.entries, entry)
	}
	fn := r.broadcast
	r.mu.Unlock()

	if fn != nil {
		fn(level, message, domain)
	}
}

// Snapshot returns a copy of the buffered entries, oldest first.
func (r *Ring) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of buffered entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

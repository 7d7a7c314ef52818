package upload

import (
	"sync"

	"github.com/google/uuid"
)

// sessionLocker hands out one mutex per session ID so that the
// check-then-append of a part record is atomic per session. Entries
// are reference-counted and dropped when the last holder releases,
// keeping the map bounded by the number of in-flight requests.
type sessionLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocker() *sessionLocker {
	return &sessionLocker{
		locks: make(map[uuid.UUID]*sessionLock),
	}
}

// Lock acquires the per-session mutex, creating it on first use
func (l *sessionLocker) Lock(id uuid.UUID) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &sessionLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the per-session mutex and discards it when no other
// goroutine is waiting on it
func (l *sessionLocker) Unlock(id uuid.UUID) {
	l.mu.Lock()
	entry := l.locks[id]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}

package bot

import "sync"

// InFlight tracks users with an outstanding AI request. A user may have at
// most one request in flight at a time; a second prompt is rejected rather
// than queued. State is purely in-memory and empty at process start.
type InFlight struct {
	mu    sync.Mutex
	users map[int64]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{
		users: make(map[int64]struct{}),
	}
}

// TryEnter marks userID as having a request in flight. It returns false if
// the user already has one outstanding.
func (f *InFlight) TryEnter(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; ok {
		return false
	}
	f.users[userID] = struct{}{}
	return true
}

// Leave clears userID's in-flight marker. Leaving without a prior TryEnter
// is a no-op.
func (f *InFlight) Leave(userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, userID)
}

// Contains reports whether userID currently has a request in flight.
func (f *InFlight) Contains(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[userID]
	return ok
}

// Len returns the number of users with a request in flight.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

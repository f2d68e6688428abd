package identity

import (
	"sync"
	"time"
)

// Revocations is an in-memory denylist of token ids. Entries are dropped once
// the token they name would have expired anyway.
type Revocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewRevocations() *Revocations {
	return &Revocations{entries: make(map[string]time.Time), now: time.Now}
}

// Revoke denies the token id until exp.
func (r *Revocations) Revoke(id string, exp time.Time) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = exp
	r.sweepLocked()
}

func (r *Revocations) IsRevoked(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.entries[id]
	if !ok {
		return false
	}
	if r.now().After(exp) {
		delete(r.entries, id)
		return false
	}
	return true
}

func (r *Revocations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	return len(r.entries)
}

func (r *Revocations) sweepLocked() {
	now := r.now()
	for id, exp := range r.entries {
		if now.After(exp) {
			delete(r.entries, id)
		}
	}
}

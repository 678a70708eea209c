package pending

import (
	"sync"
	"time"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	"github.com/birdeye-sniper/sniper_service/pkg/metrics"
)

// Registry holds in-flight transfer negotiations keyed by the chat message carrying
// their prompt. A user owns at most one entry at a time.
type Registry struct {
	mu      sync.Mutex
	entries map[entities.MessageRef]*entities.PendingTransaction
	now     func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[entities.MessageRef]*entities.PendingTransaction),
		now:     time.Now,
	}
}

// Put stores p under p.Ref() and drops every other entry of the same user.
// It returns how many entries were superseded.
func (r *Registry) Put(p *entities.PendingTransaction) int {
	entry := p.Clone()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	superseded := r.dropUser(entry.InitiatingUserID, entry.Ref())
	r.entries[entry.Ref()] = entry
	r.publish()
	return superseded
}

// Get returns a copy of the entry at ref
func (r *Registry) Get(ref entities.MessageRef) (*entities.PendingTransaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[ref]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Take removes and returns the entry at ref
func (r *Registry) Take(ref entities.MessageRef) (*entities.PendingTransaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[ref]
	if !ok {
		return nil, false
	}
	delete(r.entries, ref)
	r.publish()
	return p, true
}

// Delete removes the entry at ref
func (r *Registry) Delete(ref entities.MessageRef) bool {
	_, ok := r.Take(ref)
	return ok
}

// Rekey replaces the entry at from with next, stored under next.Ref().
// It reports false, leaving the registry untouched, when from is no longer
// held by next's user (cancelled, swept or superseded in the meantime).
func (r *Registry) Rekey(from entities.MessageRef, next *entities.PendingTransaction) bool {
	entry := next.Clone()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.entries[from]
	if !ok || old.InitiatingUserID != entry.InitiatingUserID {
		return false
	}
	delete(r.entries, from)
	r.dropUser(entry.InitiatingUserID, entry.Ref())
	r.entries[entry.Ref()] = entry
	r.publish()
	return true
}

// dropUser deletes the user's entries other than keep. Caller holds mu.
func (r *Registry) dropUser(userID int64, keep entities.MessageRef) int {
	dropped := 0
	for ref, existing := range r.entries {
		if ref != keep && existing.InitiatingUserID == userID {
			delete(r.entries, ref)
			dropped++
		}
	}
	return dropped
}

// ActiveForUser returns the user's entry, if any
func (r *Registry) ActiveForUser(userID int64) (*entities.PendingTransaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.entries {
		if p.InitiatingUserID == userID {
			return p.Clone(), true
		}
	}
	return nil, false
}

// Sweep deletes entries older than maxAge and returns how many were removed
func (r *Registry) Sweep(maxAge time.Duration) int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for ref, p := range r.entries {
		if p.IsStale(now, maxAge) {
			delete(r.entries, ref)
			removed++
		}
	}
	if removed > 0 {
		r.publish()
	}
	return removed
}

// Len returns the number of entries
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// publish updates the gauge. Caller holds mu.
func (r *Registry) publish() {
	metrics.PendingTransactionsGauge.Set(float64(len(r.entries)))
}

// rocketshoes-cartservice/cart/sessions.go

package cart

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultSessionCapacity    = 10000
	DefaultSessionIdleTimeout = 30 * time.Minute
)

// SlotFactory returns the persistent slot backing one session's cart.
type SlotFactory func(sessionID string) PersistentStore

type sessionEntry struct {
	id       string
	store    *Store
	lastUsed time.Time
}

// Sessions keeps one Store per session id. Stores are created and hydrated
// on first use. The registry holds at most capacity stores, dropping the
// least recently used, and Sweep drops stores idle longer than the idle
// timeout. A dropped session is rehydrated from its slot on the next Get.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is most recently used

	capacity    int
	idleTimeout time.Duration
	now         func() time.Time

	hydrating singleflight.Group

	deps  Deps
	slots SlotFactory
}

// SessionOption configures Sessions.
type SessionOption func(*Sessions)

// WithCapacity bounds the number of live stores.
func WithCapacity(n int) SessionOption {
	return func(s *Sessions) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithIdleTimeout sets how long an unused store is kept.
func WithIdleTimeout(d time.Duration) SessionOption {
	return func(s *Sessions) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// NewSessions returns a registry whose stores share deps except for
// Storage, which comes from slots.
func NewSessions(deps Deps, slots SlotFactory, opts ...SessionOption) *Sessions {
	s := &Sessions{
		entries:     make(map[string]*list.Element),
		order:       list.New(),
		capacity:    DefaultSessionCapacity,
		idleTimeout: DefaultSessionIdleTimeout,
		now:         time.Now,
		deps:        deps,
		slots:       slots,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the store for sessionID, hydrating it if needed. Hydration
// runs outside the registry lock; concurrent Gets for the same new session
// share one hydration.
func (s *Sessions) Get(ctx context.Context, sessionID string) *Store {
	if store, ok := s.lookup(sessionID); ok {
		return store
	}

	v, _, _ := s.hydrating.Do(sessionID, func() (interface{}, error) {
		if store, ok := s.lookup(sessionID); ok {
			return store, nil
		}

		deps := s.deps
		deps.Storage = s.slots(sessionID)
		if deps.Logger != nil {
			deps.Logger = deps.Logger.WithField("session_id", sessionID)
		}
		store := New(context.WithoutCancel(ctx), deps)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.entries[sessionID] = s.order.PushFront(&sessionEntry{
			id:       sessionID,
			store:    store,
			lastUsed: s.now(),
		})
		for s.order.Len() > s.capacity {
			s.removeLocked(s.order.Back())
		}
		return store, nil
	})
	return v.(*Store)
}

// lookup returns a live store and marks it used.
func (s *Sessions) lookup(sessionID string) (*Store, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[sessionID]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*sessionEntry)
	now := s.now()
	if now.Sub(entry.lastUsed) > s.idleTimeout {
		s.removeLocked(el)
		return nil, false
	}
	entry.lastUsed = now
	s.order.MoveToFront(el)
	return entry.store, true
}

// End forgets the in-memory store for sessionID. The persisted snapshot is
// left in place.
func (s *Sessions) End(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[sessionID]; ok {
		s.removeLocked(el)
	}
}

// Sweep ends every session idle longer than the idle timeout and returns
// how many were dropped.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTimeout)
	dropped := 0
	for el := s.order.Back(); el != nil; {
		entry := el.Value.(*sessionEntry)
		if !entry.lastUsed.Before(cutoff) {
			break
		}
		prev := el.Prev()
		s.removeLocked(el)
		dropped++
		el = prev
	}
	return dropped
}

// Run sweeps idle sessions every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 && s.deps.Logger != nil {
				s.deps.Logger.WithField("dropped", n).Debug("cart: swept idle sessions")
			}
		}
	}
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *Sessions) removeLocked(el *list.Element) {
	entry := s.order.Remove(el).(*sessionEntry)
	delete(s.entries, entry.id)
}

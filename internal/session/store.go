// Package session is an owner-keyed session store with an explicit
// lifecycle, injected as a dependency instead of process-global state.
package session

import (
	"sync"
	"time"
)

// Session records a verified owner identity for a credential.
type Session struct {
	OwnerID   string
	Username  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store caches verified sessions by credential with a TTL. The zero
// value is not usable, construct with NewStore.
type Store struct {
	mu      sync.RWMutex
	ttl     time.Duration
	items   map[string]*Session
	stop    chan struct{}
	stopped bool
}

// NewStore creates a session store and starts its cleanup loop.
func NewStore(ttl time.Duration) *Store {
	s := &Store{
		ttl:   ttl,
		items: make(map[string]*Session),
		stop:  make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Get returns the live session for a credential, if any.
func (s *Store) Get(credential string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.items[credential]
	if !ok || time.Now().After(sess.ExpiresAt) {
		return nil, false
	}
	return sess, true
}

// Put records a verified session for a credential.
func (s *Store) Put(credential, ownerID, username string) *Session {
	now := time.Now()
	sess := &Session{
		OwnerID:   ownerID,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.items[credential] = sess
	s.mu.Unlock()
	return sess
}

// Invalidate drops the session for a credential.
func (s *Store) Invalidate(credential string) {
	s.mu.Lock()
	delete(s.items, credential)
	s.mu.Unlock()
}

// Len returns the number of cached sessions, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close stops the cleanup loop.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.stop)
	}
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, sess := range s.items {
				if now.After(sess.ExpiresAt) {
					delete(s.items, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

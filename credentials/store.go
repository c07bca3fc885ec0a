// credentials/store.go
package credentials

import (
	"sync"
	"time"
)

// Store holds the access and refresh records. Credential strategies write to it before they
// return; the coordinator reads snapshots and resets records that turn out to be unusable.
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	access  Record
	refresh Record
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Access returns a snapshot of the access record.
func (s *Store) Access() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// Refresh returns a snapshot of the refresh record.
func (s *Store) Refresh() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// SetAccess replaces the access record.
func (s *Store) SetAccess(r Record) {
	s.mu.Lock()
	s.access = r
	s.mu.Unlock()
}

// SetRefresh replaces the refresh record.
func (s *Store) SetRefresh(r Record) {
	s.mu.Lock()
	s.refresh = r
	s.mu.Unlock()
}

// SetAccessToken stores an access token issued at now that expires after lifetime.
func (s *Store) SetAccessToken(token string, lifetime time.Duration, now time.Time) {
	s.SetAccess(Record{Token: token, IssuedDelay: lifetime, ExpiresAt: now.Add(lifetime)})
}

// SetRefreshToken stores a refresh token issued at now that expires after lifetime.
func (s *Store) SetRefreshToken(token string, lifetime time.Duration, now time.Time) {
	s.SetRefresh(Record{Token: token, IssuedDelay: lifetime, ExpiresAt: now.Add(lifetime)})
}

// ResetAccess clears the access record.
func (s *Store) ResetAccess() {
	s.mu.Lock()
	s.access.Reset()
	s.mu.Unlock()
}

// ResetRefresh clears the refresh record.
func (s *Store) ResetRefresh() {
	s.mu.Lock()
	s.refresh.Reset()
	s.mu.Unlock()
}

// ResetAccessIf clears the access record only if match reports true for its current value,
// and reports whether it did. Callers use it to avoid discarding a token that a strategy
// stored after the caller took its snapshot.
func (s *Store) ResetAccessIf(match func(Record) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !match(s.access) {
		return false
	}
	s.access.Reset()
	return true
}

// ResetRefreshIf is ResetAccessIf for the refresh record.
func (s *Store) ResetRefreshIf(match func(Record) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !match(s.refresh) {
		return false
	}
	s.refresh.Reset()
	return true
}

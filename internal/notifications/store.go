package notifications

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound marks a missing preference record.
var ErrNotFound = errors.New("notification preferences not found")

// Preferences holds the frame notification credentials for one user.
type Preferences struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Store persists notification preferences keyed by farcaster id. Writes
// replace the whole record; there is no merge.
type Store interface {
	Get(ctx context.Context, fid int64) (Preferences, error)
	Set(ctx context.Context, fid int64, prefs Preferences) error
	Delete(ctx context.Context, fid int64) error
	Close()
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[int64]Preferences
}

// NewMemoryStore returns an in-process Store used when Redis is not
// configured.
func NewMemoryStore() Store {
	return &memoryStore{entries: make(map[int64]Preferences)}
}

func (s *memoryStore) Get(ctx context.Context, fid int64) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefs, ok := s.entries[fid]
	if !ok {
		return Preferences{}, ErrNotFound
	}
	return prefs, nil
}

func (s *memoryStore) Set(ctx context.Context, fid int64, prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fid] = prefs
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, fid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fid)
	return nil
}

func (s *memoryStore) Close() {}

package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/singleflight"
)

// Store holds the catalog snapshot the terminal currently works against.
//
// Reads are cheap and lock-free beyond an RWMutex; Refresh replaces the
// snapshot wholesale. Concurrent refreshes (several sessions checking out at
// once) are collapsed into a single backend fetch via singleflight.
type Store struct {
	fetcher Fetcher

	group singleflight.Group

	mu      sync.RWMutex
	current *Snapshot
}

// NewStore creates a Store that starts with an empty snapshot.
func NewStore(fetcher Fetcher) *Store {
	return &Store{
		fetcher: fetcher,
		current: NewSnapshot(nil, time.Time{}),
	}
}

// Current returns the latest snapshot. It is never nil; before the first
// successful refresh it is empty.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Refresh fetches the catalog from the backend and replaces the current
// snapshot. Concurrent callers share one in-flight fetch. On error the
// previous snapshot is kept.
func (s *Store) Refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("refresh", func() (any, error) {
		items, err := s.fetcher.FetchCatalog(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "fetch catalog")
		}

		snap := NewSnapshot(items, time.Now())
		s.mu.Lock()
		s.current = snap
		s.mu.Unlock()
		return snap, nil
	})
	return err
}

package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	mu    sync.Mutex
	items []Item
	err   error
	calls atomic.Int32

	// release, when set, blocks FetchCatalog until closed.
	release chan struct{}
}

func (f *stubFetcher) FetchCatalog(_ context.Context) ([]Item, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items, f.err
}

func (f *stubFetcher) set(items []Item, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
	f.err = err
}

func TestStoreStartsEmpty(t *testing.T) {
	s := NewStore(&stubFetcher{})
	snap := s.Current()
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.Len())
}

func TestStoreRefresh(t *testing.T) {
	f := &stubFetcher{items: []Item{{ID: "a"}, {ID: "b"}}}
	s := NewStore(f)

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, 2, s.Current().Len())
	assert.False(t, s.Current().TakenAt().IsZero())
}

func TestStoreRefreshErrorKeepsSnapshot(t *testing.T) {
	f := &stubFetcher{items: []Item{{ID: "a"}}}
	s := NewStore(f)
	require.NoError(t, s.Refresh(context.Background()))
	before := s.Current()

	f.set(nil, errors.New("backend down"))
	err := s.Refresh(context.Background())
	require.Error(t, err)

	assert.Same(t, before, s.Current(), "failed refresh must not replace the snapshot")
}

func TestStoreConcurrentRefreshCollapses(t *testing.T) {
	f := &stubFetcher{
		items:   []Item{{ID: "a"}},
		release: make(chan struct{}),
	}
	s := NewStore(f)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Refresh(context.Background())
		}()
	}

	// Give the goroutines time to pile onto the single in-flight fetch,
	// then let it complete.
	require.Eventually(t, func() bool { return f.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Less(t, int(f.calls.Load()), n, "concurrent refreshes should share fetches")
	assert.Equal(t, 1, s.Current().Len())
}

package prediction

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/insight-engine/pkg/logging"
)

type sweepStore struct {
	deleted int64
	err     error
	calls   chan struct{}
}

func (s *sweepStore) Get(context.Context, string) (*Entry, error) { return nil, ErrEntryNotFound }
func (s *sweepStore) Put(context.Context, Entry) error            { return nil }

func (s *sweepStore) DeleteExpired(context.Context) (int64, error) {
	if s.calls != nil {
		select {
		case s.calls <- struct{}{}:
		default:
		}
	}
	return s.deleted, s.err
}

func TestCleanerSweep(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return current }
	defer func() { nowFunc = time.Now }()

	memory := NewMemoryCache(time.Minute)
	memory.Put("stale", json.RawMessage(`1`), 0.5)
	current = current.Add(2 * time.Minute)

	cleaner := NewCleaner(memory, &sweepStore{deleted: 4}, logging.Default())
	assert.Equal(t, int64(4), cleaner.Sweep(context.Background()))
	assert.Equal(t, 0, memory.Len())
}

func TestCleanerSweepStoreError(t *testing.T) {
	cleaner := NewCleaner(NewMemoryCache(time.Minute), &sweepStore{err: context.DeadlineExceeded}, logging.Default())
	assert.Equal(t, int64(0), cleaner.Sweep(context.Background()))
}

func TestCleanerStartRunsUntilCancelled(t *testing.T) {
	store := &sweepStore{deleted: 1, calls: make(chan struct{}, 1)}
	cleaner := NewCleaner(NewMemoryCache(time.Minute), store, logging.Default()).
		WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cleaner.Start(ctx)
		close(done)
	}()

	select {
	case <-store.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleaner did not stop on cancel")
	}
}

func TestCleanerStartWithoutLayersReturns(t *testing.T) {
	cleaner := NewCleaner(nil, nil, logging.Default())

	done := make(chan struct{})
	go func() {
		cleaner.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner with no layers should return immediately")
	}
	require.NotNil(t, cleaner)
}

package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/capture"
	memstore "github.com/pagesnap/pagesnap/internal/store/memory"
	memblob "github.com/pagesnap/pagesnap/internal/storage/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func storedJob(t *testing.T, store *memstore.Store, blobs *memblob.BlobStore, id string, expiresAt time.Time) capture.Job {
	t.Helper()
	job := capture.Job{
		ID:        id,
		OwnerID:   "owner-1",
		SeedURL:   "https://site.test/",
		Status:    capture.JobStatusCompleted,
		ExpiresAt: expiresAt,
	}
	require.NoError(t, store.Create(context.Background(), job))
	require.NoError(t, blobs.Put(context.Background(), job.StoragePrefix()+"/desktop_1_000.webp", capture.ImageContentType, []byte("img")))
	return job
}

func TestSweepOnceReclaimsOnlyExpiredJobs(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	blobs := memblob.NewBlobStore()
	now := time.Date(2024, 6, 3, 13, 0, 0, 0, time.UTC)

	expired := storedJob(t, store, blobs, "old", now.Add(-time.Hour))
	fresh := storedJob(t, store, blobs, "new", now.Add(time.Hour))

	s := New(Config{}, store, blobs, fixedClock{now: now}, zap.NewNop())
	swept, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	_, err = store.Get(context.Background(), expired.ID)
	require.ErrorIs(t, err, capture.ErrJobNotFound)
	paths, err := blobs.List(context.Background(), expired.StoragePrefix()+"/")
	require.NoError(t, err)
	require.Empty(t, paths)

	_, err = store.Get(context.Background(), fresh.ID)
	require.NoError(t, err)
	paths, err = blobs.List(context.Background(), fresh.StoragePrefix()+"/")
	require.NoError(t, err)
	require.Len(t, paths, 1)
}

type failingBlobs struct {
	capture.BlobStore
}

func (f failingBlobs) DeletePrefix(context.Context, string) error {
	return errors.New("bucket unavailable")
}

func TestSweepOnceKeepsJobWhenBlobDeleteFails(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	blobs := memblob.NewBlobStore()
	now := time.Date(2024, 6, 3, 13, 0, 0, 0, time.UTC)
	job := storedJob(t, store, blobs, "old", now.Add(-time.Hour))

	s := New(Config{}, store, failingBlobs{BlobStore: blobs}, fixedClock{now: now}, zap.NewNop())
	swept, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, swept)

	// Row survives so the next sweep retries the whole job.
	_, err = store.Get(context.Background(), job.ID)
	require.NoError(t, err)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	s := New(Config{Interval: 10 * time.Millisecond}, memstore.New(), memblob.NewBlobStore(), fixedClock{now: time.Now()}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

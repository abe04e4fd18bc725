package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagesnap/pagesnap/internal/capture"
)

func TestQueueRoundTrip(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	defer q.Close()

	task := capture.Task{JobID: "job-1", Submitted: time.Now()}
	require.NoError(t, q.Enqueue(context.Background(), task))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-1", got.JobID)
}

func TestQueueEnqueueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), capture.Task{JobID: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, capture.Task{JobID: "b"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueDequeueAfterClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), capture.Task{JobID: "a"}))
	q.Close()
	q.Close()

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a", got.JobID)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/capture"
	"github.com/pagesnap/pagesnap/internal/queue/memory"
)

type recordingRunner struct {
	mu   sync.Mutex
	jobs []string
	seen chan string
}

func newRecordingRunner(buffer int) *recordingRunner {
	return &recordingRunner{seen: make(chan string, buffer)}
}

func (r *recordingRunner) Run(_ context.Context, jobID string) error {
	r.mu.Lock()
	r.jobs = append(r.jobs, jobID)
	r.mu.Unlock()
	r.seen <- jobID
	return nil
}

func TestDispatcherProcessesQueuedTasks(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(8)
	runner := newRecordingRunner(8)
	dispatch := New(q, runner, 2, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		require.NoError(t, dispatch.Enqueue(ctx, capture.Task{JobID: id, Submitted: time.Now()}))
	}

	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case id := <-runner.seen:
			got[id] = true
		case <-time.After(time.Second):
			t.Fatal("tasks were not drained")
		}
	}
	require.Len(t, got, 3)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{err: errors.New("boom")}, newRecordingRunner(1), 1, zap.NewNop())

	err := dispatch.Enqueue(context.Background(), capture.Task{JobID: "job"})
	require.EqualError(t, err, "queue enqueue: boom")
}

func TestDispatcherStopsWorkersOnQueueClose(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	dispatch := New(q, newRecordingRunner(1), 1, zap.NewNop())

	done := make(chan struct{})
	go func() {
		dispatch.Run(context.Background())
		close(done)
	}()

	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after queue close")
	}
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, capture.Task) error {
	return q.err
}

func (q *errorQueue) Dequeue(ctx context.Context) (capture.Task, error) {
	<-ctx.Done()
	return capture.Task{}, ctx.Err()
}
